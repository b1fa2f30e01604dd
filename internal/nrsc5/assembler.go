package nrsc5

import (
	"sync"
	"time"
)

// SongInfo is a stabilized song metadata tuple. It is emitted only once the
// title and artist have stopped changing for a quiet window, so downstream
// consumers never see half-updated tuples.
type SongInfo struct {
	Title          string
	Artist         string
	Album          string
	HasEmbeddedArt bool
	ArtFile        string
}

// SongAssembler debounces raw SongField events into SongInfo emissions.
// Title, artist and album arrive on separate lines in any order; each field
// change re-arms the quiet-window timer, and the assembled tuple is emitted
// once the window elapses with both title and artist present. The same tuple
// is never emitted twice in a row.
type SongAssembler struct {
	mu    sync.Mutex
	quiet time.Duration
	emit  func(SongInfo)
	timer *time.Timer
	cur   SongInfo
	last  SongInfo
}

// NewSongAssembler creates an assembler with the given quiet window. emit is
// called from a timer goroutine once per stabilized tuple.
func NewSongAssembler(quiet time.Duration, emit func(SongInfo)) *SongAssembler {
	return &SongAssembler{quiet: quiet, emit: emit}
}

// Apply feeds a parser event into the assembler. Non-song events are ignored
// except album-art payloads, which mark the pending tuple as having embedded
// art available.
func (a *SongAssembler) Apply(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := ev.(type) {
	case SongField:
		switch e.Kind {
		case FieldTitle:
			if e.Value == a.cur.Title {
				return
			}
			// New song: album and art from the previous one no longer apply.
			a.cur = SongInfo{Title: e.Value, Artist: a.cur.Artist}
			a.bump()
		case FieldArtist:
			if e.Value == a.cur.Artist {
				return
			}
			a.cur.Artist = e.Value
			a.bump()
		case FieldAlbum:
			if e.Value == a.cur.Album {
				return
			}
			a.cur.Album = e.Value
			a.bump()
		}
	case DataPayload:
		if e.Kind != PayloadAlbumArt {
			return
		}
		a.cur.HasEmbeddedArt = true
		a.cur.ArtFile = e.File
		a.bump()
	}
}

// Reset clears all pending state and cancels the timer. Used on retune so a
// dead session cannot emit into the new one.
func (a *SongAssembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.cur = SongInfo{}
	a.last = SongInfo{}
}

func (a *SongAssembler) bump() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.quiet, a.flush)
}

func (a *SongAssembler) flush() {
	a.mu.Lock()
	if a.cur.Title == "" || a.cur.Artist == "" || a.cur == a.last {
		a.mu.Unlock()
		return
	}
	a.last = a.cur
	out := a.cur
	emit := a.emit
	a.mu.Unlock()

	if emit != nil {
		emit(out)
	}
}
