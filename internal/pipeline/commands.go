package pipeline

import (
	"fmt"
	"math"
	"strconv"
)

// DigitalCommand builds the argument list for the HD decoder. Audio goes to
// stdout for the player; diagnostics go to stderr. The decoder binds to the
// requested subchannel at launch, which is why subchannel changes require a
// full pipeline restart.
func DigitalCommand(p Params) []string {
	var args []string
	if p.Gain != nil {
		args = append(args, "-g", formatGain(*p.Gain))
	}
	if p.DeviceIndex != nil {
		args = append(args, "-d", strconv.Itoa(*p.DeviceIndex))
	}
	if p.LotDir != "" {
		args = append(args, "--dump-aas-files", p.LotDir)
	}
	hz := int64(math.Round(p.FrequencyMHz * 1e6))
	return append(args, "-o", "-", strconv.FormatInt(hz, 10), strconv.Itoa(p.Subchannel))
}

// AnalogCommand builds the argument list for the wideband FM demodulator,
// producing signed 16-bit little-endian PCM at 48 kHz on stdout.
func AnalogCommand(p Params) []string {
	gain := "0"
	if p.Gain != nil {
		gain = formatGain(*p.Gain)
	}
	return []string{
		"-M", "wbfm",
		"-f", fmt.Sprintf("%.1fM", p.FrequencyMHz),
		"-s", "200k",
		"-r", "48k",
		"-E", "deemp=75",
		"-g", gain,
		"-p", fmt.Sprintf("%+d", p.PPM),
	}
}

// PlayerCommand builds the argument list for the audio player reading from
// stdin. The analog leg is raw PCM and needs the format spelled out; the
// digital decoder emits a self-describing stream.
func PlayerCommand(kind Kind) []string {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "warning"}
	if kind == Analog {
		args = append(args, "-f", "s16le", "-ar", "48000")
	}
	return append(args, "-i", "-")
}

func formatGain(g float64) string {
	return strconv.FormatFloat(g, 'f', -1, 64)
}
