package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// LaunchReason classifies why a pipeline could not be started.
type LaunchReason int

const (
	ReasonUnknown LaunchReason = iota
	ReasonMissingBinary
	ReasonNotExecutable
	ReasonDeviceBusy
)

func (r LaunchReason) String() string {
	switch r {
	case ReasonMissingBinary:
		return "missing binary"
	case ReasonNotExecutable:
		return "not executable"
	case ReasonDeviceBusy:
		return "device busy"
	default:
		return "unknown"
	}
}

// LaunchError is fatal to the attempted session but not to the orchestrator:
// the caller reports it upward and returns to idle.
type LaunchError struct {
	Binary string
	Reason LaunchReason
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("launch %s: %s: %v", e.Binary, e.Reason, e.Err)
	}
	return fmt.Sprintf("launch %s: %s", e.Binary, e.Reason)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func classifyLaunch(binary string, err error) *LaunchError {
	le := &LaunchError{Binary: binary, Reason: ReasonUnknown, Err: err}
	switch {
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist):
		le.Reason = ReasonMissingBinary
	case errors.Is(err, os.ErrPermission):
		le.Reason = ReasonNotExecutable
	}
	return le
}

// The RTL dongle being held by another process shows up on stderr, not as a
// spawn error, so the scanner watches early output for these markers.
var busyMarkers = []string{
	"usb_claim_interface",
	"Device or resource busy",
	"Resource busy",
}

func isDeviceBusyLine(line string) bool {
	for _, marker := range busyMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
