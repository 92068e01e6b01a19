package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const SchemaVersion = 2

// Migrate creates (or upgrades) the history schema in-place.
//
// v1: events table keyed by autoincrement id.
// v2: sessions table and the events.job_id column.
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS events (
			event_id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			device TEXT NOT NULL,
			kind TEXT NOT NULL,
			record_type TEXT NOT NULL,
			job_id INTEGER,
			occurred_at TEXT NOT NULL,
			-- occurred_ns orders and filters without parsing text timestamps.
			occurred_ns INTEGER NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_device_time ON events(device, occurred_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);`,

		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			device TEXT NOT NULL,
			started_at TEXT NOT NULL,
			stopped_at TEXT,
			interval_ms INTEGER NOT NULL,
			job_ids TEXT,
			ticks INTEGER NOT NULL DEFAULT 0,
			events INTEGER NOT NULL DEFAULT 0,
			read_errors INTEGER NOT NULL DEFAULT 0,
			sink_errors INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_device ON sessions(device, started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	// v2: job_id was added after the first release of the events table.
	if current == 1 {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE events ADD COLUMN job_id INTEGER;`); err != nil {
			msg := err.Error()
			if !strings.Contains(msg, "duplicate column name") && !strings.Contains(msg, "already exists") {
				return fmt.Errorf("exec migration statement: %w", err)
			}
		}
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
