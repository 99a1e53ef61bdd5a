// Package storage persists the client directory and the pending-message
// mailbox in a local SQLite database.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNameTaken = errors.New("name already registered")
	ErrBadRecord = errors.New("invalid record")
)

// Store holds the server's registered clients and undelivered messages.
// It is safe for concurrent use; write races resolve inside SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and prepares the schema
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// WAL keeps readers unblocked while connection goroutines write
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %v", err)
	}

	s := &Store{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
	-- Registered clients (the directory)
	CREATE TABLE IF NOT EXISTS clients (
		id BLOB PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		public_key BLOB NOT NULL,
		last_seen INTEGER NOT NULL
	);

	-- Undelivered messages (the mailbox)
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		to_client BLOB NOT NULL,
		from_client BLOB NOT NULL,
		type INTEGER NOT NULL,
		content BLOB NOT NULL
	);

	-- Index for fast mailbox lookup by recipient
	CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_client);

	-- Index for name uniqueness checks
	CREATE INDEX IF NOT EXISTS idx_clients_name ON clients(name);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}

	return nil
}

// isConstraintErr reports whether err is a SQLite uniqueness violation
func isConstraintErr(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// Ping verifies the database connection is still usable
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
