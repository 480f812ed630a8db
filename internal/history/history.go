// Package history keeps a SQLite journal of finished runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/bryanchriswhite/DetectorSim/internal/server"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id              TEXT PRIMARY KEY,
	channel             TEXT NOT NULL,
	cache_mode          TEXT NOT NULL,
	started_at          INTEGER NOT NULL,
	finished_at         INTEGER NOT NULL,
	runtime_seconds     REAL NOT NULL,
	published           INTEGER NOT NULL,
	generated           INTEGER NOT NULL,
	frame_rate          REAL NOT NULL,
	requested_rate      REAL NOT NULL,
	data_rate_mbps      REAL NOT NULL,
	cache_drops         INTEGER NOT NULL,
	cache_misses        INTEGER NOT NULL,
	error               TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
`

// Run is one journal entry
type Run struct {
	RunID         string    `json:"run_id" yaml:"run_id"`
	Channel       string    `json:"channel" yaml:"channel"`
	CacheMode     string    `json:"cache_mode" yaml:"cache_mode"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time `json:"finished_at" yaml:"finished_at"`
	Runtime       float64   `json:"runtime_seconds" yaml:"runtime_seconds"`
	Published     int64     `json:"published" yaml:"published"`
	Generated     int64     `json:"generated" yaml:"generated"`
	FrameRate     float64   `json:"frame_rate" yaml:"frame_rate"`
	RequestedRate float64   `json:"requested_rate" yaml:"requested_rate"`
	DataRateMBps  float64   `json:"data_rate_mbps" yaml:"data_rate_mbps"`
	CacheDrops    uint64    `json:"cache_drops" yaml:"cache_drops"`
	CacheMisses   uint64    `json:"cache_misses" yaml:"cache_misses"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Store is the run journal
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal at path with WAL journaling and a busy
// timeout, then applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}

	logger.WithComponent("history").Debug().Str("path", path).Msg("Run history opened")
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends the final statistics of a run
func (s *Store) Record(ctx context.Context, st server.Stats, finished time.Time) error {
	var started int64
	if !st.StartTime.IsZero() {
		started = st.StartTime.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, channel, cache_mode, started_at, finished_at,
			runtime_seconds, published, generated, frame_rate, requested_rate,
			data_rate_mbps, cache_drops, cache_misses, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.RunID, st.ChannelName, string(st.CacheMode),
		started, finished.UnixNano(),
		st.Runtime.Seconds(), st.Published, st.Generated,
		st.FrameRate, st.RequestedFrameRate, st.DataRateMBps,
		int64(st.CacheDrops), int64(st.CacheMisses), st.Error,
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", st.RunID, err)
	}
	logger.WithComponent("history").Info().Str("run_id", st.RunID).Msg("Run recorded")
	return nil
}

// List returns the most recent runs, newest first
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, channel, cache_mode, started_at, finished_at,
			runtime_seconds, published, generated, frame_rate, requested_rate,
			data_rate_mbps, cache_drops, cache_misses, error
		FROM runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
			drops, misses     int64
		)
		if err := rows.Scan(&r.RunID, &r.Channel, &r.CacheMode, &started, &finished,
			&r.Runtime, &r.Published, &r.Generated, &r.FrameRate, &r.RequestedRate,
			&r.DataRateMBps, &drops, &misses, &r.Error); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if started != 0 {
			r.StartedAt = time.Unix(0, started)
		}
		r.FinishedAt = time.Unix(0, finished)
		r.CacheDrops = uint64(drops)
		r.CacheMisses = uint64(misses)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
