// Package storage persists the event log to SQLite. The database is a
// durability boundary, not a query engine: the in-memory store stays
// authoritative, and storage round-trips its snapshot shape plus a small
// meta table for the device identity and clock.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/substratelabs/substrate/pkg/event"
	"github.com/substratelabs/substrate/pkg/store"

	_ "modernc.org/sqlite"
)

// DB is a SQLite-backed persistence collaborator for one device's log.
type DB struct {
	db *sql.DB
}

// Open opens (creating if absent) the database at path and runs migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// modernc.org/sqlite serializes writes per connection; one connection
	// avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS events (
        id TEXT PRIMARY KEY,
        epistemic_type TEXT NOT NULL,
        category TEXT,
        actor TEXT,
        workspace TEXT NOT NULL DEFAULT '',
        logical_clock INTEGER NOT NULL DEFAULT 0,
        timestamp DATETIME,
        body JSON NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_events_clock ON events (logical_clock);
    CREATE INDEX IF NOT EXISTS idx_events_workspace ON events (workspace);

    CREATE TABLE IF NOT EXISTS meta (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

// SaveSnapshot writes the full snapshot in one transaction, replacing
// whatever was stored before.
func (s *DB) SaveSnapshot(ctx context.Context, snap *store.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("storage: nil snapshot")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("storage: clear events: %w", err)
	}
	for _, e := range snap.Events {
		if err := insertEvent(ctx, tx, e); err != nil {
			return err
		}
	}
	if err := setMetaTx(ctx, tx, "snapshot_version", snap.Version); err != nil {
		return err
	}
	if err := setMetaTx(ctx, tx, "logical_clock", strconv.FormatUint(snap.LogicalClock, 10)); err != nil {
		return err
	}
	return tx.Commit()
}

// PersistEvent upserts a single committed event. Wired as a store
// subscriber it keeps the database current without full-snapshot writes.
func (s *DB) PersistEvent(ctx context.Context, e *event.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertEvent(ctx, tx, e); err != nil {
		return err
	}
	if err := setMetaTx(ctx, tx, "logical_clock", strconv.FormatUint(e.LogicalClock, 10)); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *event.Event) error {
	if e == nil {
		return fmt.Errorf("storage: nil event")
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("storage: encode event %s: %w", e.ID, err)
	}
	query := `INSERT OR REPLACE INTO events (
        id, epistemic_type, category, actor, workspace, logical_clock, timestamp, body
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		e.ID, string(e.EpistemicType), e.Category, e.Actor, e.Workspace(),
		e.LogicalClock, e.Timestamp.UTC().Format(time.RFC3339Nano), string(body),
	)
	if err != nil {
		return fmt.Errorf("storage: insert event %s: %w", e.ID, err)
	}
	return nil
}

// LoadSnapshot reads the stored log in clock order. An empty database
// yields an empty snapshot at the current export version.
func (s *DB) LoadSnapshot(ctx context.Context) (*store.Snapshot, error) {
	snap := &store.Snapshot{Version: store.ExportVersion}

	if v, ok, err := s.getMeta(ctx, "snapshot_version"); err != nil {
		return nil, err
	} else if ok {
		snap.Version = v
	}
	if v, ok, err := s.getMeta(ctx, "logical_clock"); err != nil {
		return nil, err
	} else if ok {
		clock, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("storage: corrupt logical_clock %q: %w", v, err)
		}
		snap.LogicalClock = clock
	}

	rows, err := s.db.QueryContext(ctx, `SELECT body FROM events ORDER BY logical_clock ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e event.Event
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("storage: decode stored event: %w", err)
		}
		snap.Events = append(snap.Events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Count returns the number of stored events.
func (s *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// DeviceID returns this database's stable device identity, generating and
// persisting one on first call. The id survives restarts; sync peers use
// it to attribute events and vector-clock entries.
func (s *DB) DeviceID(ctx context.Context) (string, error) {
	if v, ok, err := s.getMeta(ctx, "device_id"); err != nil {
		return "", err
	} else if ok {
		return v, nil
	}
	id := uuid.NewString()
	if err := s.setMeta(ctx, "device_id", id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DB) getMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *DB) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

func setMetaTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}
