package pipeline

import (
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is the sole reference to one live pipeline: the decoder (or
// demodulator) and the player process it feeds. It owns both process
// handles and their pipes; nothing outside this package touches them.
// A handle is destroyed exactly once, by Manager.Stop.
type Handle struct {
	id   uuid.UUID
	kind Kind

	decoder *exec.Cmd
	player  *exec.Cmd

	// Closed when the respective process has been reaped.
	decoderExited chan struct{}
	playerExited  chan struct{}

	lines chan string
	done  chan Exit

	// Closed when the diagnostic scanner has finished, so exit
	// classification never races the stderr markers it depends on.
	scanDone chan struct{}

	// Closed by Stop before signalling, so waiters know the death was
	// deliberate and must not be reported as a crash.
	quit     chan struct{}
	stopOnce sync.Once

	deviceBusy atomic.Bool
}

// ID returns the handle's unique identifier. Events derived from this
// pipeline carry it so stale events from a superseded session can be
// discarded.
func (h *Handle) ID() uuid.UUID { return h.id }

// Kind reports whether this is the digital or analog pipeline.
func (h *Handle) Kind() Kind { return h.kind }

// Lines streams the decoder's diagnostic output, one whole line at a time,
// in the order produced. The channel closes when the decoder's stderr hits
// EOF.
func (h *Handle) Lines() <-chan string { return h.lines }

// Done delivers at most one Exit per process that dies outside a deliberate
// Stop. The channel is buffered; receivers may read lazily.
func (h *Handle) Done() <-chan Exit { return h.done }
