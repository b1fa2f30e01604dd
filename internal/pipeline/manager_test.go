package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestManager wires both pipeline legs to shell scripts so tests exercise
// the real spawn/teardown machinery without SDR hardware.
func newTestManager(decoderScript string) *Manager {
	m := NewManager(Binaries{Decoder: "sh", Demodulator: "sh", Player: "sh"}, zerolog.Nop())
	m.digitalArgs = func(Params) []string { return []string{"-c", decoderScript} }
	m.analogArgs = m.digitalArgs
	m.playerArgs = func(Kind) []string { return []string{"-c", "cat >/dev/null"} }
	return m
}

func collectLines(t *testing.T, h *Handle, n int) []string {
	t.Helper()
	var lines []string
	timeout := time.After(5 * time.Second)
	for len(lines) < n {
		select {
		case line, ok := <-h.Lines():
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-timeout:
			t.Fatalf("timed out waiting for %d lines, got %v", n, lines)
		}
	}
	return lines
}

func TestStart_MissingBinary(t *testing.T) {
	m := NewManager(Binaries{Decoder: "no-such-decoder-binary", Player: "sh"}, zerolog.Nop())

	h, err := m.Start(context.Background(), Digital, Params{FrequencyMHz: 98.7})
	require.Nil(t, h)

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ReasonMissingBinary, le.Reason)
	assert.Equal(t, "no-such-decoder-binary", le.Binary)
}

func TestStart_NotExecutable(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "decoder")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\n"), 0o644))

	m := NewManager(Binaries{Decoder: fake, Player: "sh"}, zerolog.Nop())

	_, err := m.Start(context.Background(), Digital, Params{FrequencyMHz: 98.7})
	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ReasonNotExecutable, le.Reason)
}

func TestStartStop_DiagnosticLinesAndCleanTeardown(t *testing.T) {
	m := newTestManager(`printf 'Synchronized\nTitle: Song A\n' >&2; sleep 30`)

	h, err := m.Start(context.Background(), Digital, Params{FrequencyMHz: 98.7})
	require.NoError(t, err)

	lines := collectLines(t, h, 2)
	assert.Equal(t, []string{"Synchronized", "Title: Song A"}, lines)

	m.Stop(h)

	// A deliberate stop must not be reported as a crash.
	select {
	case exit := <-h.Done():
		t.Fatalf("unexpected exit report after Stop: %+v", exit)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStop_Idempotent(t *testing.T) {
	m := newTestManager("sleep 30")

	h, err := m.Start(context.Background(), Analog, Params{FrequencyMHz: 98.7})
	require.NoError(t, err)

	m.Stop(h)
	m.Stop(h)
	m.Stop(nil)
}

func TestDone_ReportsUnexpectedExit(t *testing.T) {
	m := newTestManager("exit 3")

	h, err := m.Start(context.Background(), Digital, Params{FrequencyMHz: 98.7})
	require.NoError(t, err)
	defer m.Stop(h)

	select {
	case exit := <-h.Done():
		assert.Equal(t, h.ID(), exit.HandleID)
		assert.Error(t, exit.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit report")
	}
}

func TestDone_ClassifiesDeviceBusy(t *testing.T) {
	m := newTestManager(`echo 'usb_claim_interface error -6' >&2; exit 1`)

	h, err := m.Start(context.Background(), Digital, Params{FrequencyMHz: 98.7})
	require.NoError(t, err)
	defer m.Stop(h)

	// Drain diagnostics so the busy marker is observed.
	collectLines(t, h, 1)

	select {
	case exit := <-h.Done():
		var le *LaunchError
		require.ErrorAs(t, exit.Err, &le)
		assert.Equal(t, ReasonDeviceBusy, le.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit report")
	}
}

func TestStart_CancelledContext(t *testing.T) {
	m := newTestManager("sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Start(ctx, Digital, Params{FrequencyMHz: 98.7})
	assert.Error(t, err)
}
