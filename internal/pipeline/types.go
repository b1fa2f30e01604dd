package pipeline

import "github.com/google/uuid"

// Kind selects which decode pipeline to run.
type Kind int

const (
	// Digital runs the HD decoder piped into the player.
	Digital Kind = iota
	// Analog runs the wideband FM demodulator piped into the player.
	Analog
)

func (k Kind) String() string {
	switch k {
	case Digital:
		return "digital"
	case Analog:
		return "analog"
	default:
		return "unknown"
	}
}

// Params carries everything needed to build the decoder command line.
type Params struct {
	FrequencyMHz float64
	Subchannel   int
	Gain         *float64
	PPM          int
	DeviceIndex  *int

	// LotDir is where the digital decoder dumps LOT files (album art and
	// data service payloads). Empty disables dumping.
	LotDir string
}

// Exit reports a pipeline process dying outside of a deliberate Stop.
type Exit struct {
	HandleID uuid.UUID
	Process  string
	Err      error
}

// Binaries names the external programs the manager spawns.
type Binaries struct {
	Decoder     string
	Demodulator string
	Player      string
}

// DefaultBinaries matches the stock nrsc5 / rtl-sdr / ffmpeg toolchain.
func DefaultBinaries() Binaries {
	return Binaries{
		Decoder:     "nrsc5",
		Demodulator: "rtl_fm",
		Player:      "ffplay",
	}
}
