package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// ErrNoRecord is returned by GetCurrent when a collection has never been
// written.
var ErrNoRecord = errors.New("store: no record for collection")

// schema contains the DDL executed on first open. Using IF NOT EXISTS makes
// it safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS current (
    collection  TEXT PRIMARY KEY,
    payload     TEXT NOT NULL,
    recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    seq_id      TEXT NOT NULL,
    field       TEXT NOT NULL,
    payload     TEXT NOT NULL,
    recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transitions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    from_state  TEXT NOT NULL,
    to_state    TEXT NOT NULL,
    recorded_at TEXT NOT NULL
);
`

// Store persists unit telemetry in a local SQLite database in WAL mode. The
// current table holds the latest reading per collection (weather, power,
// safety) so staleness checks can compare against the recorded timestamp;
// the observations and transitions tables are append-only history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at dbPath, enables WAL mode and
// busy timeout, and creates the schema tables if they do not exist.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// Limit to one connection. SQLite only supports a single writer; using
	// one connection avoids SQLITE_BUSY contention between pooled connections
	// that each need their own PRAGMA setup. WAL mode still benefits external
	// readers and provides crash-safe writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}

	// Busy timeout avoids SQLITE_BUSY under concurrent access from external processes.
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// InsertCurrent upserts the latest payload for a collection. The payload is
// marshaled to JSON and stamped with the wall clock at insert time.
func (s *Store) InsertCurrent(ctx context.Context, collection string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: marshal %q payload: %w", collection, err)
	}

	const q = `
		INSERT INTO current (collection, payload, recorded_at)
		VALUES (?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET
			payload     = excluded.payload,
			recorded_at = excluded.recorded_at`
	at := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, q, collection, string(body), at); err != nil {
		return fmt.Errorf("store: insert current %q: %w", collection, err)
	}
	return nil
}

// GetCurrent returns the latest payload and its timestamp for a collection.
// Returns ErrNoRecord if the collection has never been written.
func (s *Store) GetCurrent(ctx context.Context, collection string) ([]byte, time.Time, error) {
	var payload, ts string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, recorded_at FROM current WHERE collection = ?", collection).
		Scan(&payload, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("%w: %q", ErrNoRecord, collection)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: get current %q: %w", collection, err)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: parse %q timestamp: %w", collection, err)
	}
	return []byte(payload), at, nil
}

// LogObservation appends an observation record to the history table.
func (s *Store) LogObservation(ctx context.Context, seqID, field string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: marshal observation %q: %w", seqID, err)
	}
	const q = `INSERT INTO observations (seq_id, field, payload, recorded_at) VALUES (?, ?, ?, ?)`
	at := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, q, seqID, field, string(body), at); err != nil {
		return fmt.Errorf("store: log observation %q: %w", seqID, err)
	}
	return nil
}

// LogTransition appends a state change to the history table.
func (s *Store) LogTransition(ctx context.Context, from, to string) error {
	const q = `INSERT INTO transitions (from_state, to_state, recorded_at) VALUES (?, ?, ?)`
	at := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, q, from, to, at); err != nil {
		return fmt.Errorf("store: log transition %s -> %s: %w", from, to, err)
	}
	return nil
}

// Transition is one state-change record from the history table.
type Transition struct {
	From string
	To   string
	At   time.Time
}

// RecentTransitions returns the most recent state changes, newest first.
func (s *Store) RecentTransitions(ctx context.Context, limit int) ([]Transition, error) {
	const q = `SELECT from_state, to_state, recorded_at FROM transitions ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query transitions: %w", err)
	}
	defer rows.Close()

	var result []Transition
	for rows.Next() {
		var tr Transition
		var ts string
		if err := rows.Scan(&tr.From, &tr.To, &ts); err != nil {
			return nil, fmt.Errorf("store: scan transition: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("store: parse transition timestamp: %w", err)
		}
		tr.At = at
		result = append(result, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate transitions: %w", err)
	}
	return result, nil
}

// ObservationCount returns the number of logged observation records for a
// sequence ID.
func (s *Store) ObservationCount(ctx context.Context, seqID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM observations WHERE seq_id = ?", seqID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count observations %q: %w", seqID, err)
	}
	return n, nil
}

// Prune deletes transition and observation history recorded before cutoff
// and returns the number of rows removed. Timestamps are compared as
// strings; retention cutoffs are day-scale, so sub-second formatting
// differences never matter.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	before := cutoff.UTC().Format(time.RFC3339Nano)
	var total int64
	for _, table := range []string{"transitions", "observations"} {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE recorded_at < ?", before)
		if err != nil {
			return total, fmt.Errorf("store: prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("store: prune %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
