package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FanOut(t *testing.T) {
	b := New()
	defer b.Close()

	ui, err := b.Subscribe("ui", 8)
	require.NoError(t, err)
	logger, err := b.Subscribe("logger", 8)
	require.NoError(t, err)

	b.Publish(SyncState{Synced: true, Mode: "hd"})
	b.Publish(SignalQuality{BitrateKbps: 96})

	assert.Equal(t, SyncState{Synced: true, Mode: "hd"}, <-ui)
	assert.Equal(t, SignalQuality{BitrateKbps: 96}, <-ui)
	assert.Equal(t, SyncState{Synced: true, Mode: "hd"}, <-logger)
	assert.Equal(t, SignalQuality{BitrateKbps: 96}, <-logger)
}

func TestBus_DuplicateSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	_, err := b.Subscribe("ui", 1)
	require.NoError(t, err)
	_, err = b.Subscribe("ui", 1)
	assert.ErrorIs(t, err, ErrSubscriberExists)
}

func TestBus_SlowSubscriberDropsNotBlocks(t *testing.T) {
	b := New()
	defer b.Close()

	_, err := b.Subscribe("slow", 1)
	require.NoError(t, err)

	b.Publish(StationMessage{Text: "one"})
	b.Publish(StationMessage{Text: "two"})
	b.Publish(StationMessage{Text: "three"})

	stats, err := b.Stats("slow")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Sent)
	assert.Equal(t, uint64(2), stats.Dropped)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	ch, err := b.Subscribe("ui", 1)
	require.NoError(t, err)
	require.NoError(t, b.Unsubscribe("ui"))

	_, open := <-ch
	assert.False(t, open)

	assert.ErrorIs(t, b.Unsubscribe("ui"), ErrUnknownSubscriber)
}

func TestBus_Close(t *testing.T) {
	b := New()

	ch, err := b.Subscribe("ui", 1)
	require.NoError(t, err)

	b.Close()

	_, open := <-ch
	assert.False(t, open)

	_, err = b.Subscribe("late", 1)
	assert.ErrorIs(t, err, ErrClosed)

	// Publishing after close is a no-op, not a panic.
	b.Publish(SessionError{Message: "ignored"})
}
