package session

import (
	"math"

	"github.com/pkg/errors"
)

const (
	// MinFrequencyMHz and MaxFrequencyMHz bound the FM broadcast band.
	MinFrequencyMHz = 88.0
	MaxFrequencyMHz = 108.0

	// MaxSubchannel is the highest HD program index a station can carry.
	MaxSubchannel = 3
)

// TuneRequest describes one tuning target. Immutable once submitted; a
// new request supersedes whatever session is in flight.
type TuneRequest struct {
	FrequencyMHz float64
	Subchannel   int

	// AnalogOnly skips digital acquisition and goes straight to the
	// wideband FM demodulator.
	AnalogOnly bool
}

// Validate checks the request against the FM band grid.
func (r TuneRequest) Validate() error {
	if r.FrequencyMHz < MinFrequencyMHz || r.FrequencyMHz > MaxFrequencyMHz {
		return errors.Errorf("frequency %.1f MHz outside the FM band [%.1f, %.1f]",
			r.FrequencyMHz, MinFrequencyMHz, MaxFrequencyMHz)
	}
	// FM channels sit on a 0.1 MHz grid.
	scaled := r.FrequencyMHz * 10
	if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
		return errors.Errorf("frequency %v MHz is not on the 0.1 MHz grid", r.FrequencyMHz)
	}
	if r.Subchannel < 0 || r.Subchannel > MaxSubchannel {
		return errors.Errorf("subchannel %d out of range [0, %d]", r.Subchannel, MaxSubchannel)
	}
	return nil
}

// State is the session lifecycle state.
type State int

const (
	Idle State = iota
	AcquiringDigital
	DigitalActive
	AnalogActive
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AcquiringDigital:
		return "acquiring_digital"
	case DigitalActive:
		return "digital_active"
	case AnalogActive:
		return "analog_active"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}
