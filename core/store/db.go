// Package store persists held actions and graduation states in SQLite. The
// approve/cancel/execute race guarantee rests on conditional UPDATEs: a
// status transition applies only while the row still holds the expected
// status, and a zero-row update surfaces as holdqueue.ErrNoMatch.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PoolConfig tunes the SQLite connection pool.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	BusyTimeout time.Duration
}

// DefaultPoolConfig returns the pool tuning used in production.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpen:     10,
		MaxIdle:     5,
		MaxLifetime: time.Hour,
		BusyTimeout: 30 * time.Second,
	}
}

// DB wraps one SQLite database holding both hold-queue tables.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path with WAL journaling.
func Open(path string, config PoolConfig) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=1",
		path,
		int(config.BusyTimeout.Milliseconds()),
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpen)
	db.SetMaxIdleConns(config.MaxIdle)
	db.SetConnMaxLifetime(config.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &DB{db: db, path: path}, nil
}

// Migrate creates the hold-queue schema when absent.
func (d *DB) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS held_actions (
	id              TEXT PRIMARY KEY,
	project         TEXT NOT NULL,
	action_type     TEXT NOT NULL,
	payload         TEXT NOT NULL,
	status          TEXT NOT NULL,
	hold_expires_at INTEGER NOT NULL,
	created_at      INTEGER NOT NULL,
	decided_at      INTEGER,
	executed_at     INTEGER,
	decided_by      TEXT NOT NULL DEFAULT '',
	cancel_reason   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_held_actions_project_status
	ON held_actions(project, status);
CREATE INDEX IF NOT EXISTS idx_held_actions_status_expiry
	ON held_actions(status, hold_expires_at);

CREATE TABLE IF NOT EXISTS graduation_states (
	project               TEXT NOT NULL,
	action_type           TEXT NOT NULL,
	consecutive_approvals INTEGER NOT NULL DEFAULT 0,
	tier                  INTEGER NOT NULL DEFAULT 0,
	last_approved_at      INTEGER,
	last_cancelled_at     INTEGER,
	PRIMARY KEY (project, action_type)
);`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.db.Close()
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
