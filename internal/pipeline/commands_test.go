package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestDigitalCommand(t *testing.T) {
	p := Params{
		FrequencyMHz: 98.7,
		Subchannel:   1,
		Gain:         floatPtr(28),
		PPM:          5,
		DeviceIndex:  intPtr(0),
		LotDir:       "/tmp/lot",
	}

	args := DigitalCommand(p)
	assert.Equal(t, []string{
		"-g", "28",
		"-d", "0",
		"--dump-aas-files", "/tmp/lot",
		"-o", "-",
		"98700000", "1",
	}, args)
}

func TestDigitalCommand_MinimalParams(t *testing.T) {
	args := DigitalCommand(Params{FrequencyMHz: 105.5})
	assert.Equal(t, []string{"-o", "-", "105500000", "0"}, args)
}

func TestAnalogCommand(t *testing.T) {
	p := Params{FrequencyMHz: 98.7, Gain: floatPtr(28), PPM: 5}

	args := AnalogCommand(p)
	assert.Equal(t, []string{
		"-M", "wbfm",
		"-f", "98.7M",
		"-s", "200k",
		"-r", "48k",
		"-E", "deemp=75",
		"-g", "28",
		"-p", "+5",
	}, args)
}

func TestAnalogCommand_DefaultGainAndNegativePPM(t *testing.T) {
	args := AnalogCommand(Params{FrequencyMHz: 90.1, PPM: -3})
	assert.Contains(t, args, "0")
	assert.Contains(t, args, "-3")
}

func TestPlayerCommand(t *testing.T) {
	hd := PlayerCommand(Digital)
	assert.Equal(t, []string{"-nodisp", "-autoexit", "-loglevel", "warning", "-i", "-"}, hd)

	fm := PlayerCommand(Analog)
	assert.Equal(t, []string{"-nodisp", "-autoexit", "-loglevel", "warning", "-f", "s16le", "-ar", "48000", "-i", "-"}, fm)
}
