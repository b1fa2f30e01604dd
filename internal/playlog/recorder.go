package playlog

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMetaDelay is how long a new song is held before duplicate
	// checks run, giving late album fields time to arrive.
	DefaultMetaDelay = 2 * time.Second

	// DefaultMinPlay is how long a song must stay current before it is
	// committed to history. Songs superseded earlier are treated as
	// interstitials and dropped.
	DefaultMinPlay = 45 * time.Second
)

// PlayEvent is one accepted play, ready for persistence.
type PlayEvent struct {
	Title        string
	Artist       string
	Album        string
	Station      string
	FrequencyMHz float64
	Subchannel   int
	PlayedAt     time.Time
}

// Sink receives accepted plays. Implemented by the history store.
type Sink interface {
	AddPlay(PlayEvent) error
	LastPlay() (*PlayEvent, error)
}

// Options tunes the recorder timers. Zero values take the defaults.
type Options struct {
	MetaDelay time.Duration
	MinPlay   time.Duration

	// OnTransition runs once per distinct song observed, filtered or
	// not.
	OnTransition func()
}

// Recorder turns the stream of stabilized songs into history rows. A
// song is committed only after it has stayed current for MinPlay, and
// consecutive duplicates, station content and the last row already in
// the sink (the restart case) are all suppressed.
type Recorder struct {
	sink   Sink
	filter Filter
	log    zerolog.Logger

	metaDelay    time.Duration
	minPlay      time.Duration
	onTransition func()

	mu          sync.Mutex
	gen         uint64
	pending     *PlayEvent
	pendingKey  string
	metaTimer   *time.Timer
	commitTimer *time.Timer
	lastKey     string
}

// NewRecorder creates a recorder writing accepted plays to sink.
func NewRecorder(sink Sink, opts Options, log zerolog.Logger) *Recorder {
	if opts.MetaDelay <= 0 {
		opts.MetaDelay = DefaultMetaDelay
	}
	if opts.MinPlay <= 0 {
		opts.MinPlay = DefaultMinPlay
	}
	return &Recorder{
		sink:         sink,
		log:          log.With().Str("component", "playlog").Logger(),
		metaDelay:    opts.MetaDelay,
		minPlay:      opts.MinPlay,
		onTransition: opts.OnTransition,
	}
}

func playKey(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + "||" + strings.ToLower(strings.TrimSpace(title))
}

// Observe feeds the recorder one stabilized song. Repeats of the
// current song merge in late fields; a different song supersedes the
// pending one, dropping it if it never reached MinPlay.
func (r *Recorder) Observe(ev PlayEvent) {
	if ev.PlayedAt.IsZero() {
		ev.PlayedAt = time.Now()
	}
	key := playKey(ev.Artist, ev.Title)

	r.mu.Lock()
	if key == r.pendingKey {
		if r.pending != nil && ev.Album != "" {
			r.pending.Album = ev.Album
		}
		r.mu.Unlock()
		return
	}

	r.cancelLocked()
	if r.pending != nil {
		r.log.Debug().
			Str("artist", r.pending.Artist).
			Str("title", r.pending.Title).
			Msg("dropping short play")
	}
	r.pending = nil
	r.pendingKey = key

	transition := r.onTransition
	if !r.filter.Accept(ev.Title, ev.Artist) {
		r.mu.Unlock()
		if transition != nil {
			transition()
		}
		return
	}

	r.pending = &ev
	r.gen++
	gen := r.gen
	r.metaTimer = time.AfterFunc(r.metaDelay, func() { r.validate(gen) })
	r.commitTimer = time.AfterFunc(r.minPlay, func() { r.commit(gen) })
	r.mu.Unlock()

	if transition != nil {
		transition()
	}
}

// Reset forgets the pending song and the duplicate-suppression state.
// Called when the tuner moves to a different station.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
	r.pending = nil
	r.pendingKey = ""
	r.lastKey = ""
}

func (r *Recorder) cancelLocked() {
	r.gen++
	if r.metaTimer != nil {
		r.metaTimer.Stop()
		r.metaTimer = nil
	}
	if r.commitTimer != nil {
		r.commitTimer.Stop()
		r.commitTimer = nil
	}
}

// validate runs the duplicate checks once the metadata has settled.
func (r *Recorder) validate(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.pending == nil {
		r.mu.Unlock()
		return
	}
	ev := *r.pending
	r.mu.Unlock()

	drop := false
	if playKey(ev.Artist, ev.Title) == r.lastPlayed() {
		r.log.Debug().Str("artist", ev.Artist).Str("title", ev.Title).Msg("skipping duplicate")
		drop = true
	} else if last, err := r.sink.LastPlay(); err == nil && last != nil &&
		playKey(last.Artist, last.Title) == playKey(ev.Artist, ev.Title) {
		// Already the newest row, typically because the app restarted
		// mid-song or the user bounced between stations.
		r.log.Debug().Str("artist", ev.Artist).Str("title", ev.Title).Msg("skipping last played song")
		drop = true
	}
	if !drop {
		return
	}

	r.mu.Lock()
	if gen == r.gen {
		r.lastKey = r.pendingKey
		r.pending = nil
		if r.commitTimer != nil {
			r.commitTimer.Stop()
			r.commitTimer = nil
		}
	}
	r.mu.Unlock()
}

func (r *Recorder) lastPlayed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastKey
}

// commit writes the pending song once it has survived MinPlay.
func (r *Recorder) commit(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.pending == nil {
		r.mu.Unlock()
		return
	}
	ev := *r.pending
	r.lastKey = r.pendingKey
	r.pending = nil
	r.mu.Unlock()

	if err := r.sink.AddPlay(ev); err != nil {
		r.log.Warn().Err(err).Str("artist", ev.Artist).Str("title", ev.Title).Msg("recording play failed")
		return
	}
	r.log.Info().Str("artist", ev.Artist).Str("title", ev.Title).Str("station", ev.Station).Msg("play recorded")
}
