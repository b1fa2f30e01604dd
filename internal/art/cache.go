package art

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/sdrtools/boombox/internal/playlog"
)

const (
	// DefaultFetchDelay is how long the cache waits for embedded art to
	// arrive off the air before falling back to the remote fetcher.
	DefaultFetchDelay = 3 * time.Second

	// DefaultKeepCount is how many art blobs a prune pass leaves on disk.
	DefaultKeepCount = 50

	// pruneEvery is the song-transition cadence of the prune pass.
	pruneEvery = 3
)

// ErrNotFound is returned by a Fetcher when no artwork exists for the song.
var ErrNotFound = errors.New("art: not found")

// Fetcher retrieves artwork bytes for a song from a remote source.
type Fetcher interface {
	Fetch(ctx context.Context, artist, title string) ([]byte, error)
}

// Key identifies a song inside the cache.
type Key string

// NormalizeKey builds the cache key for a song: lowercased, runs of
// whitespace collapsed, so tag jitter between broadcasts of the same
// song still hits the same entry.
func NormalizeKey(artist, title string) Key {
	collapse := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return Key(collapse(artist) + "||" + collapse(title))
}

// Request asks the cache for artwork. EmbeddedFile, when set, is art
// already decoded off the air and wins over any remote lookup.
type Request struct {
	Artist       string
	Title        string
	EmbeddedFile string
}

// Result is the outcome of a resolution. Placeholder means no art could
// be found and the UI should fall back to its default rendering.
type Result struct {
	Artist      string
	Title       string
	Path        string
	Placeholder bool
}

// Options tunes the cache. Zero values take the defaults.
type Options struct {
	FetchDelay time.Duration
	KeepCount  int

	// LotDir, when set, is pruned on the same cadence as the blob dir.
	// The decoder dumps art, logos and data tiles there for as long as
	// it runs.
	LotDir string

	// OnResult receives every resolution outcome, at most once per key
	// per generation. Wired to the session event bus.
	OnResult func(Result)
}

type entry struct {
	path     string
	negative bool
}

// Cache resolves album art for songs: embedded art first, a delayed
// remote fetch second, with single-flight per song, negative caching
// for misses and a size-capped blob directory.
type Cache struct {
	dir     string
	lotDir  string
	fetcher Fetcher
	log     zerolog.Logger

	fetchDelay time.Duration
	keepCount  int
	onResult   func(Result)

	mu          sync.Mutex
	gen         uint64
	entries     map[Key]*entry
	pending     map[Key]*time.Timer
	inflight    map[Key]struct{}
	current     Key
	transitions int
}

// NewCache creates an art cache writing fetched blobs to dir.
func NewCache(dir string, fetcher Fetcher, opts Options, log zerolog.Logger) *Cache {
	if opts.FetchDelay <= 0 {
		opts.FetchDelay = DefaultFetchDelay
	}
	if opts.KeepCount <= 0 {
		opts.KeepCount = DefaultKeepCount
	}
	return &Cache{
		dir:        dir,
		lotDir:     opts.LotDir,
		fetcher:    fetcher,
		log:        log.With().Str("component", "art").Logger(),
		fetchDelay: opts.FetchDelay,
		keepCount:  opts.KeepCount,
		onResult:   opts.OnResult,
		entries:    make(map[Key]*entry),
		pending:    make(map[Key]*time.Timer),
		inflight:   make(map[Key]struct{}),
	}
}

// Resolve starts resolution for a song and returns immediately. The
// outcome arrives through OnResult. Calling again with EmbeddedFile set
// upgrades a pending or negative resolution in place.
func (c *Cache) Resolve(ctx context.Context, req Request) {
	key := NormalizeKey(req.Artist, req.Title)

	if playlog.LooksLikeStationContent(req.Artist) || playlog.LooksLikeStationContent(req.Title) {
		c.emit(Result{Artist: req.Artist, Title: req.Title, Placeholder: true})
		return
	}

	c.mu.Lock()
	if req.EmbeddedFile != "" {
		// Embedded art wins. Cancel any delayed fetch still waiting.
		if t, ok := c.pending[key]; ok {
			t.Stop()
			delete(c.pending, key)
		}
		c.entries[key] = &entry{path: req.EmbeddedFile}
		c.mu.Unlock()
		c.emit(Result{Artist: req.Artist, Title: req.Title, Path: req.EmbeddedFile})
		return
	}

	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		c.emit(Result{Artist: req.Artist, Title: req.Title, Path: e.path, Placeholder: e.negative})
		return
	}
	if _, ok := c.pending[key]; ok {
		c.mu.Unlock()
		return
	}
	if _, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return
	}

	gen := c.gen
	c.pending[key] = time.AfterFunc(c.fetchDelay, func() {
		c.fetch(ctx, gen, key, req.Artist, req.Title)
	})
	c.mu.Unlock()
}

func (c *Cache) fetch(ctx context.Context, gen uint64, key Key, artist, title string) {
	c.mu.Lock()
	delete(c.pending, key)
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if e, ok := c.entries[key]; ok {
		// Embedded art landed during the wait.
		c.mu.Unlock()
		c.emit(Result{Artist: artist, Title: title, Path: e.path, Placeholder: e.negative})
		return
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	raw, err := c.fetcher.Fetch(ctx, artist, title)

	var path string
	negative := err != nil
	if err == nil {
		path, err = c.writeBlob(key, raw)
		negative = err != nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		c.log.Warn().Err(err).Str("artist", artist).Str("title", title).Msg("art fetch failed")
	}

	c.mu.Lock()
	delete(c.inflight, key)
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if e, ok := c.entries[key]; ok && !e.negative {
		// Embedded art won the race.
		c.mu.Unlock()
		c.emit(Result{Artist: artist, Title: title, Path: e.path})
		return
	}
	c.entries[key] = &entry{path: path, negative: negative}
	c.mu.Unlock()

	c.emit(Result{Artist: artist, Title: title, Path: path, Placeholder: negative})
}

func (c *Cache) writeBlob(key Key, raw []byte) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating art dir")
	}
	sum := sha1.Sum([]byte(key))
	path := filepath.Join(c.dir, hex.EncodeToString(sum[:])+".jpg")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", errors.Wrap(err, "writing art blob")
	}
	return path, nil
}

func (c *Cache) emit(r Result) {
	if c.onResult != nil {
		c.onResult(r)
	}
}

// NoteSongTransition tells the cache the playing song changed. Every
// third transition prunes the blob directory, and the decoder's LOT
// dump directory when configured, down to KeepCount files each, oldest
// first, never removing the current song's art.
func (c *Cache) NoteSongTransition(current Key) {
	c.mu.Lock()
	if current == c.current {
		// Late re-emits of the same song (album field or embedded art
		// arriving) are not transitions.
		c.mu.Unlock()
		return
	}
	c.current = current
	c.transitions++
	due := c.transitions%pruneEvery == 0
	var keep string
	if e, ok := c.entries[current]; ok {
		keep = e.path
	}
	c.mu.Unlock()

	if due {
		c.prune(c.dir, keep)
		if c.lotDir != "" && c.lotDir != c.dir {
			c.prune(c.lotDir, keep)
		}
	}
}

// Reset drops every entry and cancels pending work. Called on retune so
// stale resolutions from the previous station cannot surface.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for k, t := range c.pending {
		t.Stop()
		delete(c.pending, k)
	}
	c.entries = make(map[Key]*entry)
	c.current = ""
}

func (c *Cache) prune(dir, keep string) {
	dents, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	type blob struct {
		path string
		mod  time.Time
	}
	var blobs []blob
	for _, d := range dents {
		if d.IsDir() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, blob{path: filepath.Join(dir, d.Name()), mod: info.ModTime()})
	}
	if len(blobs) <= c.keepCount {
		return
	}

	sort.Slice(blobs, func(i, j int) bool { return blobs[i].mod.Before(blobs[j].mod) })

	removed := 0
	for _, b := range blobs[:len(blobs)-c.keepCount] {
		if b.path == keep {
			continue
		}
		if err := os.Remove(b.path); err == nil {
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug().Int("removed", removed).Str("dir", dir).Msg("pruned art files")
	}
}
