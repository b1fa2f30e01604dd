package session

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/sdrtools/boombox/internal/art"
	"github.com/sdrtools/boombox/internal/bus"
	"github.com/sdrtools/boombox/internal/nrsc5"
	"github.com/sdrtools/boombox/internal/pipeline"
	"github.com/sdrtools/boombox/internal/playlog"
	"github.com/sdrtools/boombox/internal/store"
)

const (
	// DefaultFallbackTimeout is the digital acquisition window. Shorter
	// risks false negatives on weak signals, longer feels unresponsive.
	DefaultFallbackTimeout = 6 * time.Second

	// DefaultMetaQuiet is the song metadata debounce window.
	DefaultMetaQuiet = 350 * time.Millisecond

	intentQueueCap = 64
)

// PipelineHandle is the slice of pipeline.Handle the controller needs.
type PipelineHandle interface {
	ID() uuid.UUID
	Kind() pipeline.Kind
	Lines() <-chan string
	Done() <-chan pipeline.Exit
}

// PipelineManager starts and stops pipelines. Satisfied by
// WrapManager(*pipeline.Manager); tests substitute fakes.
type PipelineManager interface {
	Start(ctx context.Context, kind pipeline.Kind, p pipeline.Params) (PipelineHandle, error)
	Stop(PipelineHandle)
}

type managerAdapter struct {
	m *pipeline.Manager
}

// WrapManager adapts the concrete pipeline manager to the controller's
// interface.
func WrapManager(m *pipeline.Manager) PipelineManager {
	return managerAdapter{m: m}
}

func (a managerAdapter) Start(ctx context.Context, kind pipeline.Kind, p pipeline.Params) (PipelineHandle, error) {
	h, err := a.m.Start(ctx, kind, p)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (a managerAdapter) Stop(h PipelineHandle) {
	if ph, ok := h.(*pipeline.Handle); ok {
		a.m.Stop(ph)
	}
}

// Options tunes the controller. Zero values take the defaults.
type Options struct {
	FallbackTimeout time.Duration
	MetaQuiet       time.Duration
	AutoFallback    bool

	// Radio hardware parameters forwarded into every pipeline.
	Gain        *float64
	PPM         int
	DeviceIndex *int
	LotDir      string
}

// Deps are the controller's collaborators. Manager is required; the
// rest may be nil, switching the matching feature off.
type Deps struct {
	Manager  PipelineManager
	Bus      *bus.Bus
	Art      *art.Cache
	Recorder *playlog.Recorder
	Presets  *store.PresetStore
}

// Status is the externally visible session snapshot.
type Status struct {
	State   State
	Request TuneRequest
	Station string
	Song    nrsc5.SongInfo
}

type intent interface{ isIntent() }

type (
	tuneIntent        struct{ req TuneRequest }
	stopIntent        struct{}
	setFallbackIntent struct{ on bool }
	fallbackIntent    struct{ handle uuid.UUID }
	exitIntent        struct {
		handle uuid.UUID
		exit   pipeline.Exit
	}
	eventIntent struct {
		handle uuid.UUID
		ev     nrsc5.Event
	}
	songIntent struct {
		handle uuid.UUID
		song   nrsc5.SongInfo
	}
)

func (tuneIntent) isIntent()        {}
func (stopIntent) isIntent()        {}
func (setFallbackIntent) isIntent() {}
func (fallbackIntent) isIntent()    {}
func (exitIntent) isIntent()        {}
func (eventIntent) isIntent()       {}
func (songIntent) isIntent()        {}

// Controller serializes every intent against the live pipeline on a
// single control goroutine, so no two transitions ever interleave and
// at most one pipeline is alive at any instant. All public methods are
// fire-and-forget; outcomes surface on the event bus.
type Controller struct {
	deps Deps
	opts Options
	log  zerolog.Logger

	machine *Machine
	intents chan intent
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// Control-loop-owned. Never touched outside the loop.
	handle    PipelineHandle
	assembler *nrsc5.SongAssembler
	timer     *time.Timer

	mu      sync.Mutex
	station struct{ name, slogan, genre string }
	status  Status
}

// NewController creates the controller and starts its control loop.
func NewController(deps Deps, opts Options, log zerolog.Logger) *Controller {
	if opts.FallbackTimeout <= 0 {
		opts.FallbackTimeout = DefaultFallbackTimeout
	}
	if opts.MetaQuiet <= 0 {
		opts.MetaQuiet = DefaultMetaQuiet
	}
	c := &Controller{
		deps:    deps,
		opts:    opts,
		log:     log.With().Str("component", "session").Logger(),
		machine: NewMachine(opts.AutoFallback),
		intents: make(chan intent, intentQueueCap),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Tune requests a new session, superseding whatever is in flight.
func (c *Controller) Tune(req TuneRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	c.post(tuneIntent{req: req})
	return nil
}

// Stop retires the current session.
func (c *Controller) Stop() {
	c.post(stopIntent{})
}

// SetAutoFallback toggles analog fallback on acquisition timeout.
func (c *Controller) SetAutoFallback(on bool) {
	c.post(setFallbackIntent{on: on})
}

// Status returns the current session snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SavePreset stores the current tune target in the given slot.
func (c *Controller) SavePreset(slot int) error {
	if c.deps.Presets == nil {
		return errors.New("no preset store configured")
	}
	st := c.Status()
	if st.State == Idle {
		return errors.New("nothing tuned")
	}
	return c.deps.Presets.Set(slot, store.Preset{
		Name:         st.Station,
		FrequencyMHz: st.Request.FrequencyMHz,
		Subchannel:   st.Request.Subchannel,
	})
}

// LoadPreset tunes to the preset in the given slot.
func (c *Controller) LoadPreset(slot int) error {
	if c.deps.Presets == nil {
		return errors.New("no preset store configured")
	}
	p, err := c.deps.Presets.Get(slot)
	if err != nil {
		return err
	}
	if p == nil {
		return errors.Errorf("preset slot %d is empty", slot)
	}
	return c.Tune(TuneRequest{FrequencyMHz: p.FrequencyMHz, Subchannel: p.Subchannel})
}

// Shutdown stops the session and the control loop. Blocks until the
// loop has retired the pipeline or the context expires.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.once.Do(func() { close(c.quit) })
	select {
	case <-c.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) post(in intent) {
	select {
	case c.intents <- in:
	case <-c.quit:
	}
}

func (c *Controller) loop() {
	defer close(c.stopped)
	for {
		select {
		case in := <-c.intents:
			c.dispatch(in)
		case <-c.quit:
			c.apply(Stop{})
			return
		}
	}
}

func (c *Controller) dispatch(in intent) {
	switch in := in.(type) {
	case tuneIntent:
		c.resetCollaborators()
		c.apply(Tune{Request: in.req})
	case stopIntent:
		c.resetCollaborators()
		c.apply(Stop{})
	case setFallbackIntent:
		c.machine.SetAutoFallback(in.on)
	case fallbackIntent:
		if c.stale(in.handle) {
			return
		}
		c.apply(TimerExpired{})
	case exitIntent:
		if c.stale(in.handle) {
			return
		}
		c.log.Warn().Err(in.exit.Err).Str("process", in.exit.Process).Msg("pipeline process exited")
		c.apply(ProcessDied{})
	case eventIntent:
		if c.stale(in.handle) {
			return
		}
		c.handleEvent(in.ev)
	case songIntent:
		if c.stale(in.handle) {
			return
		}
		c.handleSong(in.song)
	}
}

// stale reports whether an event belongs to a pipeline that has been
// superseded. Such events must never reach the state machine.
func (c *Controller) stale(id uuid.UUID) bool {
	return c.handle == nil || c.handle.ID() != id
}

func (c *Controller) resetCollaborators() {
	if c.deps.Art != nil {
		c.deps.Art.Reset()
	}
	if c.deps.Recorder != nil {
		c.deps.Recorder.Reset()
	}
	c.mu.Lock()
	c.station = struct{ name, slogan, genre string }{}
	c.status.Station = ""
	c.status.Song = nrsc5.SongInfo{}
	c.mu.Unlock()
}

func (c *Controller) apply(in Input) {
	prev := c.machine.State()
	for _, a := range c.machine.Apply(in) {
		switch a := a.(type) {
		case StopPipeline:
			c.stopPipeline()
		case StartDigital:
			c.startPipeline(pipeline.Digital, a.Request)
		case StartAnalog:
			c.startPipeline(pipeline.Analog, a.Request)
		case ArmTimer:
			c.armTimer()
		case DisarmTimer:
			c.disarmTimer()
		case ReportNoSignal:
			c.publish(bus.NoSignal{FrequencyMHz: c.machine.Request().FrequencyMHz})
		case ReportFailure:
			c.publish(bus.SessionError{Message: a.Reason})
		}
	}
	c.finishTransition(prev, in)
}

func (c *Controller) finishTransition(prev State, in Input) {
	next := c.machine.State()
	c.mu.Lock()
	c.status.State = next
	c.status.Request = c.machine.Request()
	c.mu.Unlock()
	if next != prev {
		c.publish(bus.StateChanged{From: prev.String(), To: next.String(), Reason: inputName(in)})
		c.log.Info().Str("from", prev.String()).Str("to", next.String()).Str("reason", inputName(in)).Msg("session state changed")
	}
}

func inputName(in Input) string {
	switch in.(type) {
	case Tune:
		return "tune"
	case Stop:
		return "stop"
	case SyncAcquired:
		return "sync_acquired"
	case SyncLost:
		return "sync_lost"
	case TimerExpired:
		return "fallback_timeout"
	case ProcessDied:
		return "process_died"
	default:
		return "unknown"
	}
}

func (c *Controller) startPipeline(kind pipeline.Kind, req TuneRequest) {
	params := pipeline.Params{
		FrequencyMHz: req.FrequencyMHz,
		Subchannel:   req.Subchannel,
		Gain:         c.opts.Gain,
		PPM:          c.opts.PPM,
		DeviceIndex:  c.opts.DeviceIndex,
		LotDir:       c.opts.LotDir,
	}

	h, err := c.deps.Manager.Start(context.Background(), kind, params)
	if err != nil {
		c.log.Error().Err(err).Str("kind", kind.String()).Msg("pipeline launch failed")
		c.publish(bus.SessionError{Message: err.Error()})
		// Fatal to this session only. Retire it and return to idle.
		c.machine.Apply(Stop{})
		c.disarmTimer()
		return
	}
	c.handle = h

	parser := nrsc5.NewParser(req.Subchannel)
	id := h.ID()
	c.assembler = nrsc5.NewSongAssembler(c.opts.MetaQuiet, func(song nrsc5.SongInfo) {
		c.post(songIntent{handle: id, song: song})
	})

	go c.readLines(h, parser)
	go c.watchExit(h)
}

func (c *Controller) stopPipeline() {
	if c.handle == nil {
		return
	}
	c.deps.Manager.Stop(c.handle)
	c.handle = nil
	if c.assembler != nil {
		c.assembler.Reset()
		c.assembler = nil
	}
}

func (c *Controller) readLines(h PipelineHandle, parser *nrsc5.Parser) {
	id := h.ID()
	for line := range h.Lines() {
		for _, ev := range parser.ParseLine(line) {
			c.post(eventIntent{handle: id, ev: ev})
		}
	}
}

func (c *Controller) watchExit(h PipelineHandle) {
	select {
	case exit := <-h.Done():
		c.post(exitIntent{handle: h.ID(), exit: exit})
	case <-c.quit:
	}
}

func (c *Controller) armTimer() {
	c.disarmTimer()
	if c.handle == nil {
		return
	}
	id := c.handle.ID()
	c.timer = time.AfterFunc(c.opts.FallbackTimeout, func() {
		c.post(fallbackIntent{handle: id})
	})
}

func (c *Controller) disarmTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) handleEvent(ev nrsc5.Event) {
	if c.assembler != nil {
		c.assembler.Apply(ev)
	}
	switch ev := ev.(type) {
	case nrsc5.SyncAcquired:
		c.apply(SyncAcquired{})
		c.publish(bus.SyncState{Synced: true, Mode: "hd"})
	case nrsc5.SyncLost:
		c.apply(SyncLost{})
		c.publish(bus.SyncState{Synced: false, Mode: "hd"})
	case nrsc5.StationInfo:
		c.mergeStation(ev)
	case nrsc5.BitrateInfo:
		c.publish(bus.SignalQuality{BitrateKbps: ev.Kbps})
	case nrsc5.Message:
		c.publish(bus.StationMessage{Text: ev.Text})
	case nrsc5.DataPayload:
		switch ev.Kind {
		case nrsc5.PayloadAlbumArt:
			// Already routed through the assembler above.
		default:
			c.publish(bus.DataAvailable{Payload: ev})
		}
	case nrsc5.Raw:
		c.log.Debug().Str("line", ev.Line).Msg("unrecognized decoder line")
	}
}

func (c *Controller) mergeStation(ev nrsc5.StationInfo) {
	c.mu.Lock()
	if ev.Name != "" {
		c.station.name = ev.Name
	}
	if ev.Slogan != "" {
		c.station.slogan = ev.Slogan
	}
	if ev.Genre != "" {
		c.station.genre = ev.Genre
	}
	c.status.Station = c.station.name
	merged := c.station
	c.mu.Unlock()

	c.publish(bus.StationUpdate{Name: merged.name, Slogan: merged.slogan, Genre: merged.genre})
}

func (c *Controller) handleSong(song nrsc5.SongInfo) {
	c.mu.Lock()
	c.status.Song = song
	stationName := c.station.name
	req := c.status.Request
	c.mu.Unlock()

	c.publish(bus.NowPlaying{Station: stationName, Song: song})

	if c.deps.Art != nil {
		embedded := ""
		if song.ArtFile != "" {
			embedded = filepath.Join(c.opts.LotDir, song.ArtFile)
		}
		c.deps.Art.NoteSongTransition(art.NormalizeKey(song.Artist, song.Title))
		c.deps.Art.Resolve(context.Background(), art.Request{
			Artist:       song.Artist,
			Title:        song.Title,
			EmbeddedFile: embedded,
		})
	}
	if c.deps.Recorder != nil {
		c.deps.Recorder.Observe(playlog.PlayEvent{
			Title:        song.Title,
			Artist:       song.Artist,
			Album:        song.Album,
			Station:      stationName,
			FrequencyMHz: req.FrequencyMHz,
			Subchannel:   req.Subchannel,
		})
	}
}

func (c *Controller) publish(ev bus.Event) {
	if c.deps.Bus != nil {
		c.deps.Bus.Publish(ev)
	}
}
