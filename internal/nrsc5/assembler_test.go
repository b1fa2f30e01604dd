package nrsc5

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQuiet = 20 * time.Millisecond

type songCollector struct {
	mu    sync.Mutex
	songs []SongInfo
}

func (c *songCollector) emit(s SongInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.songs = append(c.songs, s)
}

func (c *songCollector) all() []SongInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SongInfo(nil), c.songs...)
}

func TestSongAssembler_DebouncesPartialTuples(t *testing.T) {
	col := &songCollector{}
	asm := NewSongAssembler(testQuiet, col.emit)

	// Title arrives first, artist follows within the quiet window. Exactly
	// one stabilized emission must result, not two.
	asm.Apply(SongField{Kind: FieldTitle, Value: "Song A"})
	time.Sleep(testQuiet / 4)
	asm.Apply(SongField{Kind: FieldArtist, Value: "Artist X"})

	time.Sleep(4 * testQuiet)

	songs := col.all()
	require.Len(t, songs, 1)
	assert.Equal(t, "Song A", songs[0].Title)
	assert.Equal(t, "Artist X", songs[0].Artist)
}

func TestSongAssembler_TitleOnlyNeverEmits(t *testing.T) {
	col := &songCollector{}
	asm := NewSongAssembler(testQuiet, col.emit)

	asm.Apply(SongField{Kind: FieldTitle, Value: "Station Jingle"})
	time.Sleep(4 * testQuiet)

	assert.Empty(t, col.all())
}

func TestSongAssembler_LateAlbumReEmitsEnrichedTuple(t *testing.T) {
	col := &songCollector{}
	asm := NewSongAssembler(testQuiet, col.emit)

	asm.Apply(SongField{Kind: FieldTitle, Value: "Song A"})
	asm.Apply(SongField{Kind: FieldArtist, Value: "Artist X"})
	time.Sleep(4 * testQuiet)

	asm.Apply(SongField{Kind: FieldAlbum, Value: "Album Z"})
	time.Sleep(4 * testQuiet)

	songs := col.all()
	require.Len(t, songs, 2)
	assert.Equal(t, "", songs[0].Album)
	assert.Equal(t, "Album Z", songs[1].Album)
}

func TestSongAssembler_NewTitleClearsAlbumAndArt(t *testing.T) {
	col := &songCollector{}
	asm := NewSongAssembler(testQuiet, col.emit)

	asm.Apply(SongField{Kind: FieldTitle, Value: "Song A"})
	asm.Apply(SongField{Kind: FieldArtist, Value: "Artist X"})
	asm.Apply(SongField{Kind: FieldAlbum, Value: "Album Z"})
	asm.Apply(DataPayload{Kind: PayloadAlbumArt, File: "cover_a.jpg"})
	time.Sleep(4 * testQuiet)

	asm.Apply(SongField{Kind: FieldTitle, Value: "Song B"})
	time.Sleep(4 * testQuiet)

	songs := col.all()
	require.Len(t, songs, 2)
	assert.Equal(t, "Song B", songs[1].Title)
	assert.Equal(t, "Artist X", songs[1].Artist)
	assert.Equal(t, "", songs[1].Album)
	assert.False(t, songs[1].HasEmbeddedArt)
}

func TestSongAssembler_EmbeddedArtFlagged(t *testing.T) {
	col := &songCollector{}
	asm := NewSongAssembler(testQuiet, col.emit)

	asm.Apply(SongField{Kind: FieldTitle, Value: "Song A"})
	asm.Apply(SongField{Kind: FieldArtist, Value: "Artist X"})
	asm.Apply(DataPayload{Kind: PayloadAlbumArt, File: "1234_COVER.jpg"})
	time.Sleep(4 * testQuiet)

	songs := col.all()
	require.Len(t, songs, 1)
	assert.True(t, songs[0].HasEmbeddedArt)
	assert.Equal(t, "1234_COVER.jpg", songs[0].ArtFile)
}

func TestSongAssembler_DuplicateFieldsDoNotReEmit(t *testing.T) {
	col := &songCollector{}
	asm := NewSongAssembler(testQuiet, col.emit)

	asm.Apply(SongField{Kind: FieldTitle, Value: "Song A"})
	asm.Apply(SongField{Kind: FieldArtist, Value: "Artist X"})
	time.Sleep(4 * testQuiet)

	// The decoder repeats the current tuple periodically.
	asm.Apply(SongField{Kind: FieldTitle, Value: "Song A"})
	asm.Apply(SongField{Kind: FieldArtist, Value: "Artist X"})
	time.Sleep(4 * testQuiet)

	assert.Len(t, col.all(), 1)
}

func TestSongAssembler_Reset(t *testing.T) {
	col := &songCollector{}
	asm := NewSongAssembler(testQuiet, col.emit)

	asm.Apply(SongField{Kind: FieldTitle, Value: "Song A"})
	asm.Apply(SongField{Kind: FieldArtist, Value: "Artist X"})
	asm.Reset()
	time.Sleep(4 * testQuiet)

	assert.Empty(t, col.all())
}
