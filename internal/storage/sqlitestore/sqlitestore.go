// Package sqlitestore persists sessions and draft histories in a single
// SQLite database. It is the durable alternative to the in-memory stores:
// both stores share one file so a session and its draft survive restarts
// together.
package sqlitestore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps one SQLite database holding sessions, turns, and drafts.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent appenders.
	db.SetMaxOpenConns(1)

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DB) migrate() error {
	statements := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			status      TEXT NOT NULL,
			memory      TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			archived_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id   TEXT NOT NULL,
			seq          INTEGER NOT NULL,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			tool_name    TEXT NOT NULL DEFAULT '',
			tool_call_id TEXT NOT NULL DEFAULT '',
			arguments    TEXT,
			timestamp    TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS drafts (
			session_id TEXT NOT NULL,
			version    INTEGER NOT NULL,
			payload    TEXT NOT NULL,
			PRIMARY KEY (session_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions (updated_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Sessions returns the session store view of the database.
func (s *DB) Sessions() *SessionStore {
	return &SessionStore{db: s.db}
}

// Drafts returns the draft store view of the database.
func (s *DB) Drafts() *DraftStore {
	return &DraftStore{db: s.db}
}

// Close closes the underlying database.
func (s *DB) Close() error {
	return s.db.Close()
}
