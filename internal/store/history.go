package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/sdrtools/boombox/internal/playlog"
)

// HistoryConfig configures the play history database.
type HistoryConfig struct {
	Path string

	// MaxRows caps the plays table. Zero means DefaultMaxRows.
	MaxRows int
}

// DefaultMaxRows is the play history row cap.
const DefaultMaxRows = 10000

// Validate checks the config and fills in defaults.
func (c *HistoryConfig) Validate() error {
	if c.Path == "" {
		return errors.New("history: path is required")
	}
	if c.MaxRows < 0 {
		return errors.Errorf("history: max rows must be positive, got %d", c.MaxRows)
	}
	if c.MaxRows == 0 {
		c.MaxRows = DefaultMaxRows
	}
	return nil
}

const historySchema = `
CREATE TABLE IF NOT EXISTS plays (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	artist TEXT NOT NULL,
	album TEXT NOT NULL DEFAULT '',
	station TEXT NOT NULL DEFAULT '',
	frequency_mhz REAL NOT NULL,
	subchannel INTEGER NOT NULL DEFAULT 0,
	played_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stations (
	station_key TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	frequency_mhz REAL NOT NULL,
	play_count INTEGER NOT NULL DEFAULT 0,
	first_seen DATETIME NOT NULL,
	last_seen DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plays_played_at ON plays(played_at);
CREATE INDEX IF NOT EXISTS idx_plays_artist ON plays(artist);
`

// History is the SQLite-backed play log. It implements playlog.Sink.
type History struct {
	db      *sql.DB
	maxRows int
}

// NewHistory opens (and if needed creates) the history database.
func NewHistory(cfg HistoryConfig) (*History, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "opening history database")
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing history schema")
	}
	return &History{db: db, maxRows: cfg.MaxRows}, nil
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}

func stationKey(name string, freq float64) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%.1f MHz", freq)
}

// AddPlay records one play and bumps the station counters. The plays
// table is trimmed to the row cap afterwards, oldest rows first.
func (h *History) AddPlay(ev playlog.PlayEvent) error {
	tx, err := h.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning history tx")
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO plays (title, artist, album, station, frequency_mhz, subchannel, played_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Title, ev.Artist, ev.Album, ev.Station, ev.FrequencyMHz, ev.Subchannel, ev.PlayedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "inserting play")
	}

	now := time.Now().UTC()
	_, err = tx.Exec(
		`INSERT INTO stations (station_key, name, frequency_mhz, play_count, first_seen, last_seen)
		 VALUES (?, ?, ?, 1, ?, ?)
		 ON CONFLICT(station_key) DO UPDATE SET
			play_count = play_count + 1,
			last_seen = excluded.last_seen,
			name = excluded.name`,
		stationKey(ev.Station, ev.FrequencyMHz), ev.Station, ev.FrequencyMHz, now, now,
	)
	if err != nil {
		return errors.Wrap(err, "updating station counters")
	}

	_, err = tx.Exec(
		`DELETE FROM plays WHERE id <= (
			SELECT id FROM plays ORDER BY id DESC LIMIT 1 OFFSET ?
		)`,
		h.maxRows,
	)
	if err != nil {
		return errors.Wrap(err, "trimming history")
	}

	return errors.Wrap(tx.Commit(), "committing play")
}

// LastPlay returns the newest history row, or nil when the log is empty.
func (h *History) LastPlay() (*playlog.PlayEvent, error) {
	row := h.db.QueryRow(
		`SELECT title, artist, album, station, frequency_mhz, subchannel, played_at
		 FROM plays ORDER BY id DESC LIMIT 1`,
	)
	var ev playlog.PlayEvent
	err := row.Scan(&ev.Title, &ev.Artist, &ev.Album, &ev.Station,
		&ev.FrequencyMHz, &ev.Subchannel, &ev.PlayedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading last play")
	}
	return &ev, nil
}

// NameCount pairs a label with how often it appeared.
type NameCount struct {
	Name  string
	Count int
}

// Stats is a summary of the play history.
type Stats struct {
	TotalPlays    int
	UniqueSongs   int
	UniqueArtists int
	Stations      int
	TopSongs      []NameCount
	TopArtists    []NameCount
	TopStations   []NameCount
	Recent        []playlog.PlayEvent
}

// Stats summarizes the history: totals, top-10 songs, artists and
// stations, and the 20 most recent plays.
func (h *History) Stats() (*Stats, error) {
	s := &Stats{}

	err := h.db.QueryRow(
		`SELECT COUNT(*),
			COUNT(DISTINCT artist || '||' || title),
			COUNT(DISTINCT artist)
		 FROM plays`,
	).Scan(&s.TotalPlays, &s.UniqueSongs, &s.UniqueArtists)
	if err != nil {
		return nil, errors.Wrap(err, "counting plays")
	}

	if err := h.db.QueryRow(`SELECT COUNT(*) FROM stations`).Scan(&s.Stations); err != nil {
		return nil, errors.Wrap(err, "counting stations")
	}

	s.TopSongs, err = h.topQuery(
		`SELECT artist || ' - ' || title AS label, COUNT(*) AS n
		 FROM plays GROUP BY label ORDER BY n DESC, label LIMIT 10`)
	if err != nil {
		return nil, errors.Wrap(err, "top songs")
	}
	s.TopArtists, err = h.topQuery(
		`SELECT artist, COUNT(*) AS n
		 FROM plays GROUP BY artist ORDER BY n DESC, artist LIMIT 10`)
	if err != nil {
		return nil, errors.Wrap(err, "top artists")
	}
	s.TopStations, err = h.topQuery(
		`SELECT station_key, play_count FROM stations
		 ORDER BY play_count DESC, station_key LIMIT 10`)
	if err != nil {
		return nil, errors.Wrap(err, "top stations")
	}

	rows, err := h.db.Query(
		`SELECT title, artist, album, station, frequency_mhz, subchannel, played_at
		 FROM plays ORDER BY id DESC LIMIT 20`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "recent plays")
	}
	defer rows.Close()
	for rows.Next() {
		var ev playlog.PlayEvent
		if err := rows.Scan(&ev.Title, &ev.Artist, &ev.Album, &ev.Station,
			&ev.FrequencyMHz, &ev.Subchannel, &ev.PlayedAt); err != nil {
			return nil, errors.Wrap(err, "scanning recent play")
		}
		s.Recent = append(s.Recent, ev)
	}
	return s, rows.Err()
}

func (h *History) topQuery(query string) ([]NameCount, error) {
	rows, err := h.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}
