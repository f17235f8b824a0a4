// Package trace keeps an SQLite audit log of published light states.
//
// Each controller session is a run; every light state it publishes is
// appended to the run with its sequence number and timestamp. The log is
// for offline inspection only and is never read back into a controller.
package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/clock"
)

//go:embed schema.sql
var schemaSQL string

// Store is an SQLite database of runs and their light states.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema. It is
// safe to open an existing trace.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunInfo describes one recorded run.
type RunInfo struct {
	ID        int64
	Name      string
	StartedAt time.Time
	States    int
}

// Entry is one recorded light state.
type Entry struct {
	Seq    int
	At     time.Time
	Green  []junction.SensorID
	Yellow []junction.SensorID
	Lights map[junction.SensorID]junction.LightColor
}

// Run appends the light states of one controller session.
type Run struct {
	store *Store
	clock clock.Clock
	id    int64

	mu  sync.Mutex
	seq int
	err error
}

// StartRun registers a new run named name, timed by clk.
func (s *Store) StartRun(ctx context.Context, name string, clk clock.Clock) (*Run, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (name, started_at) VALUES (?, ?)`,
		name, clk.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read run id: %w", err)
	}
	return &Run{store: s, clock: clk, id: id}, nil
}

// ID returns the run's database id.
func (r *Run) ID() int64 {
	return r.id
}

// Listen appends s to the run. Write failures are kept for Err; after the
// first failure further states are dropped.
func (r *Run) Listen(s junction.LightState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}
	if err := r.append(context.Background(), s); err != nil {
		r.err = err
	}
}

func (r *Run) append(ctx context.Context, s junction.LightState) error {
	lights, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode lights: %w", err)
	}

	r.seq++
	_, err = r.store.db.ExecContext(ctx,
		`INSERT INTO light_states (run_id, seq, at_ms, green, yellow, lights) VALUES (?, ?, ?, ?, ?, ?)`,
		r.id, r.seq, r.clock.Now().UnixMilli(),
		joinIDs(s.With(junction.Green)), joinIDs(s.With(junction.Yellow)), string(lights))
	if err != nil {
		return fmt.Errorf("failed to insert light state %d: %w", r.seq, err)
	}
	return nil
}

// Err returns the first write failure, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Runs lists every run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.started_at, COUNT(l.seq)
		FROM runs r LEFT JOIN light_states l ON l.run_id = r.id
		GROUP BY r.id
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var started int64
		if err := rows.Scan(&info.ID, &info.Name, &started, &info.States); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		info.StartedAt = time.UnixMilli(started).UTC()
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// Entries returns the light states of run in publication order.
func (s *Store) Entries(ctx context.Context, run int64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, at_ms, green, yellow, lights
		FROM light_states
		WHERE run_id = ?
		ORDER BY seq`, run)
	if err != nil {
		return nil, fmt.Errorf("failed to query light states: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at int64
		var green, yellow, lights string
		if err := rows.Scan(&e.Seq, &at, &green, &yellow, &lights); err != nil {
			return nil, fmt.Errorf("failed to scan light state: %w", err)
		}
		if err := json.Unmarshal([]byte(lights), &e.Lights); err != nil {
			return nil, fmt.Errorf("failed to decode light state %d: %w", e.Seq, err)
		}
		e.At = time.UnixMilli(at).UTC()
		e.Green = splitIDs(green)
		e.Yellow = splitIDs(yellow)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func joinIDs(ids []junction.SensorID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, " ")
}

func splitIDs(s string) []junction.SensorID {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	ids := make([]junction.SensorID, len(fields))
	for i, f := range fields {
		ids[i] = junction.SensorID(f)
	}
	return ids
}
