package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens the archive at dbPath, creating it when missing.
// It enables WAL mode so a viewer can read while a subscription writes.
func NewStore(dbPath string) (*Store, error) {
	// _busy_timeout applies to every pooled connection.
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: slog.Default()}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// SetLogger replaces the logger used for archive write failures.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	// Frames keep the indexed fields as columns and the full frame as JSON.
	query := `
	CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		project_uuid TEXT NOT NULL DEFAULT '',
		frame_type TEXT NOT NULL DEFAULT '',
		stream TEXT NOT NULL DEFAULT '',
		msg TEXT NOT NULL DEFAULT '',
		ts_frame DATETIME NOT NULL,
		ts_ingest DATETIME NOT NULL,
		payload JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_frames_entity ON frames(entity, entity_id, id);
	CREATE INDEX IF NOT EXISTS idx_frames_ts_ingest ON frames(ts_ingest);

	CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}
