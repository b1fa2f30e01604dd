package pipeline

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	decoderGrace = 1250 * time.Millisecond
	playerGrace  = 1 * time.Second

	lineBufferCap = 64
)

// Manager spawns and tears down decode pipelines. It is mechanism only:
// enforcing that at most one pipeline is alive rests with the session
// controller that owns the handles.
type Manager struct {
	bins Binaries
	log  zerolog.Logger

	// Argument builders, swappable in tests.
	digitalArgs func(Params) []string
	analogArgs  func(Params) []string
	playerArgs  func(Kind) []string
}

// NewManager creates a pipeline manager using the given external binaries.
func NewManager(bins Binaries, log zerolog.Logger) *Manager {
	return &Manager{
		bins:        bins,
		log:         log.With().Str("component", "pipeline").Logger(),
		digitalArgs: DigitalCommand,
		analogArgs:  AnalogCommand,
		playerArgs:  PlayerCommand,
	}
}

// Start spawns the decoder and player pair for the requested kind, wired
// decoder-stdout → player-stdin through a kernel pipe, and returns the
// handle owning both. On partial failure (player up, decoder not) the
// already-started process is torn down before the error is returned.
func (m *Manager) Start(ctx context.Context, kind Kind, p Params) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decoderBin := m.bins.Decoder
	decoderArgs := m.digitalArgs(p)
	if kind == Analog {
		decoderBin = m.bins.Demodulator
		decoderArgs = m.analogArgs(p)
	}

	if _, err := exec.LookPath(decoderBin); err != nil {
		return nil, classifyLaunch(decoderBin, err)
	}
	if _, err := exec.LookPath(m.bins.Player); err != nil {
		return nil, classifyLaunch(m.bins.Player, err)
	}

	audioR, audioW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "audio pipe")
	}
	diagR, diagW, err := os.Pipe()
	if err != nil {
		audioR.Close()
		audioW.Close()
		return nil, errors.Wrap(err, "diagnostic pipe")
	}

	player := exec.Command(m.bins.Player, m.playerArgs(kind)...)
	player.Stdin = audioR

	decoder := exec.Command(decoderBin, decoderArgs...)
	decoder.Stdout = audioW
	decoder.Stderr = diagW

	closeAll := func() {
		audioR.Close()
		audioW.Close()
		diagR.Close()
		diagW.Close()
	}

	if err := player.Start(); err != nil {
		closeAll()
		return nil, classifyLaunch(m.bins.Player, err)
	}
	if err := decoder.Start(); err != nil {
		_ = player.Process.Kill()
		_ = player.Wait()
		closeAll()
		return nil, classifyLaunch(decoderBin, err)
	}

	// The child processes hold their own copies of the pipe ends; closing
	// ours lets EOF propagate when either side dies.
	audioR.Close()
	audioW.Close()
	diagW.Close()

	h := &Handle{
		id:            uuid.New(),
		kind:          kind,
		decoder:       decoder,
		player:        player,
		decoderExited: make(chan struct{}),
		playerExited:  make(chan struct{}),
		lines:         make(chan string, lineBufferCap),
		done:          make(chan Exit, 2),
		scanDone:      make(chan struct{}),
		quit:          make(chan struct{}),
	}

	m.log.Info().
		Str("handle", h.id.String()).
		Str("kind", kind.String()).
		Float64("frequency_mhz", p.FrequencyMHz).
		Int("subchannel", p.Subchannel).
		Msg("pipeline started")

	go m.scanDiagnostics(h, diagR)
	go m.reap(h, decoder, decoderBin, h.decoderExited, h.scanDone)
	go m.reap(h, player, m.bins.Player, h.playerExited, nil)

	return h, nil
}

// Stop tears the pipeline down: graceful signal, bounded wait, force kill,
// all descriptors released. It is idempotent and safe on every exit path.
func (m *Manager) Stop(h *Handle) {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() {
		close(h.quit)
		terminate(h.decoder, h.decoderExited, decoderGrace)
		terminate(h.player, h.playerExited, playerGrace)
		m.log.Info().Str("handle", h.id.String()).Str("kind", h.kind.String()).Msg("pipeline stopped")
	})
}

func (m *Manager) scanDiagnostics(h *Handle, r *os.File) {
	defer close(h.scanDone)
	defer close(h.lines)
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if isDeviceBusyLine(line) {
			h.deviceBusy.Store(true)
		}
		select {
		case h.lines <- line:
		case <-h.quit:
			return
		}
	}
}

func (m *Manager) reap(h *Handle, cmd *exec.Cmd, name string, exited chan struct{}, waitScan <-chan struct{}) {
	err := cmd.Wait()
	close(exited)

	select {
	case <-h.quit:
		return
	default:
	}

	// Unexpected death. A busy RTL device reports itself on stderr just
	// before exit, which upgrades the report to a classified launch error.
	// The decoder reaper waits for the scanner to drain stderr first so
	// the classification cannot miss a marker still in flight.
	if waitScan != nil {
		<-waitScan
	}
	if h.deviceBusy.Load() {
		err = &LaunchError{Binary: name, Reason: ReasonDeviceBusy, Err: err}
	}
	m.log.Warn().Str("handle", h.id.String()).Str("process", name).Err(err).Msg("pipeline process died")

	select {
	case h.done <- Exit{HandleID: h.id, Process: name, Err: err}:
	default:
	}
}

func terminate(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	select {
	case <-exited:
		return
	default:
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-exited:
	case <-t.C:
		_ = cmd.Process.Kill()
		<-exited
	}
}
