package art

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFetchDelay = 10 * time.Millisecond
	artSettle      = 100 * time.Millisecond
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	data    []byte
	err     error
	release chan struct{} // when set, Fetch blocks until closed
}

func (f *fakeFetcher) Fetch(ctx context.Context, artist, title string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type resultCollector struct {
	mu      sync.Mutex
	results []Result
}

func (c *resultCollector) add(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *resultCollector) all() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

func newTestCache(t *testing.T, f Fetcher, keep int) (*Cache, *resultCollector, string) {
	t.Helper()
	dir := t.TempDir()
	col := &resultCollector{}
	c := NewCache(dir, f, Options{
		FetchDelay: testFetchDelay,
		KeepCount:  keep,
		OnResult:   col.add,
	}, zerolog.Nop())
	return c, col, dir
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, NormalizeKey("Fleetwood Mac", "Dreams"), NormalizeKey("fleetwood  mac", " DREAMS "))
	assert.NotEqual(t, NormalizeKey("Fleetwood Mac", "Dreams"), NormalizeKey("Fleetwood Mac", "Gypsy"))
}

func TestResolve_FetchesAndCaches(t *testing.T) {
	f := &fakeFetcher{data: []byte("jpeg-bytes")}
	c, col, dir := newTestCache(t, f, 50)

	c.Resolve(context.Background(), Request{Artist: "Fleetwood Mac", Title: "Dreams"})
	time.Sleep(artSettle)

	results := col.all()
	require.Len(t, results, 1)
	assert.False(t, results[0].Placeholder)
	assert.Equal(t, dir, filepath.Dir(results[0].Path))

	raw, err := os.ReadFile(results[0].Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), raw)

	// Second resolution hits the cache, no new fetch.
	c.Resolve(context.Background(), Request{Artist: "Fleetwood Mac", Title: "Dreams"})
	time.Sleep(artSettle)
	assert.Equal(t, 1, f.callCount())
	assert.Len(t, col.all(), 2)
}

func TestResolve_SingleFlight(t *testing.T) {
	f := &fakeFetcher{data: []byte("x"), release: make(chan struct{})}
	c, col, _ := newTestCache(t, f, 50)

	for i := 0; i < 5; i++ {
		go c.Resolve(context.Background(), Request{Artist: "a-ha", Title: "Take On Me"})
	}
	time.Sleep(artSettle)
	close(f.release)
	time.Sleep(artSettle)

	assert.Equal(t, 1, f.callCount())
	assert.Len(t, col.all(), 1)
}

func TestResolve_EmbeddedWinsOverPendingFetch(t *testing.T) {
	f := &fakeFetcher{data: []byte("remote")}
	c, col, _ := newTestCache(t, f, 50)

	lot := filepath.Join(t.TempDir(), "lot-art.jpg")
	require.NoError(t, os.WriteFile(lot, []byte("embedded"), 0o644))

	c.Resolve(context.Background(), Request{Artist: "a-ha", Title: "Take On Me"})
	c.Resolve(context.Background(), Request{Artist: "a-ha", Title: "Take On Me", EmbeddedFile: lot})
	time.Sleep(artSettle)

	assert.Equal(t, 0, f.callCount(), "embedded art cancels the delayed fetch")
	results := col.all()
	require.Len(t, results, 1)
	assert.Equal(t, lot, results[0].Path)
}

func TestResolve_NegativeEntry(t *testing.T) {
	f := &fakeFetcher{err: ErrNotFound}
	c, col, _ := newTestCache(t, f, 50)

	c.Resolve(context.Background(), Request{Artist: "Unknown", Title: "Obscure B-Side"})
	time.Sleep(artSettle)
	c.Resolve(context.Background(), Request{Artist: "Unknown", Title: "Obscure B-Side"})
	time.Sleep(artSettle)

	assert.Equal(t, 1, f.callCount(), "misses are cached, no refetch")
	results := col.all()
	require.Len(t, results, 2)
	assert.True(t, results[0].Placeholder)
	assert.True(t, results[1].Placeholder)
}

func TestResolve_StationContentSkipsFetch(t *testing.T) {
	f := &fakeFetcher{data: []byte("x")}
	c, col, _ := newTestCache(t, f, 50)

	c.Resolve(context.Background(), Request{Artist: "KISS FM", Title: "Traffic Report"})
	time.Sleep(artSettle)

	assert.Equal(t, 0, f.callCount())
	results := col.all()
	require.Len(t, results, 1)
	assert.True(t, results[0].Placeholder)
}

func TestReset_DropsEntriesAndPendingWork(t *testing.T) {
	f := &fakeFetcher{data: []byte("x")}
	c, col, _ := newTestCache(t, f, 50)

	c.Resolve(context.Background(), Request{Artist: "a-ha", Title: "Take On Me"})
	time.Sleep(artSettle)
	require.Equal(t, 1, f.callCount())

	c.Reset()
	c.Resolve(context.Background(), Request{Artist: "a-ha", Title: "Take On Me"})
	time.Sleep(artSettle)

	assert.Equal(t, 2, f.callCount(), "reset forgets previous resolutions")
	assert.Len(t, col.all(), 2)
}

func TestNoteSongTransition_PrunesButSparesCurrent(t *testing.T) {
	f := &fakeFetcher{data: []byte("current-art")}
	c, _, dir := newTestCache(t, f, 1)

	key := NormalizeKey("a-ha", "Take On Me")
	c.Resolve(context.Background(), Request{Artist: "a-ha", Title: "Take On Me"})
	time.Sleep(artSettle)

	dents, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, dents, 1)
	current := filepath.Join(dir, dents[0].Name())

	// Make the current song's blob the oldest file in the directory.
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(current, old, old))
	for _, name := range []string{"b.jpg", "c.jpg", "d.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	c.NoteSongTransition(NormalizeKey("Toto", "Africa"))
	c.NoteSongTransition(NormalizeKey("Toto", "Rosanna"))
	c.NoteSongTransition(key)

	dents, err = os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(dents))
	for _, d := range dents {
		names = append(names, d.Name())
	}
	assert.Contains(t, names, filepath.Base(current), "current song art survives the prune")
	assert.Len(t, names, 2, "one kept by age plus the current blob")
}

func TestNoteSongTransition_SameSongNotCounted(t *testing.T) {
	f := &fakeFetcher{data: []byte("x")}
	c, _, dir := newTestCache(t, f, 1)

	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	// Re-emits of the current song must not advance the prune cadence.
	key := NormalizeKey("a-ha", "Take On Me")
	for i := 0; i < pruneEvery*2; i++ {
		c.NoteSongTransition(key)
	}

	dents, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, dents, 4, "no prune without a real song change")
}

func TestNoteSongTransition_PrunesLotDir(t *testing.T) {
	f := &fakeFetcher{data: []byte("x")}
	blobDir := t.TempDir()
	lotDir := t.TempDir()
	c := NewCache(blobDir, f, Options{
		FetchDelay: testFetchDelay,
		KeepCount:  1,
		LotDir:     lotDir,
	}, zerolog.Nop())

	// The decoder has dumped a pile of LOT files, the oldest being the
	// current song's embedded art.
	embedded := filepath.Join(lotDir, "album_art_1234.jpg")
	require.NoError(t, os.WriteFile(embedded, []byte("embedded"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(embedded, old, old))
	for _, name := range []string{"logo_1.png", "traffic_2.png", "weather_3.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(lotDir, name), []byte("x"), 0o644))
	}

	key := NormalizeKey("a-ha", "Take On Me")
	c.Resolve(context.Background(), Request{Artist: "a-ha", Title: "Take On Me", EmbeddedFile: embedded})

	c.NoteSongTransition(NormalizeKey("Toto", "Africa"))
	c.NoteSongTransition(NormalizeKey("Toto", "Rosanna"))
	c.NoteSongTransition(key)

	dents, err := os.ReadDir(lotDir)
	require.NoError(t, err)
	names := make([]string, 0, len(dents))
	for _, d := range dents {
		names = append(names, d.Name())
	}
	assert.Contains(t, names, filepath.Base(embedded), "current song's embedded art survives")
	assert.Len(t, names, 2, "one kept by age plus the current song's file")
}
