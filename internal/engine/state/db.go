// Package state persists finished transfers in a SQLite history database.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/surge-downloader/trickle/internal/utils"
)

var (
	dbMu   sync.Mutex
	db     *sql.DB
	dbPath string
)

// ErrNotConfigured is returned by GetDB before Configure has been called.
var ErrNotConfigured = errors.New("state database not configured")

const schema = `
CREATE TABLE IF NOT EXISTS transfers (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	filename    TEXT NOT NULL,
	dest_path   TEXT NOT NULL,
	total_size  INTEGER NOT NULL DEFAULT -1,
	downloaded  INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	mime_type   TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transfers_finished ON transfers(finished_at);
`

// Configure sets the database path. An open handle on a different path is closed.
func Configure(path string) {
	dbMu.Lock()
	defer dbMu.Unlock()
	if path != dbPath && db != nil {
		_ = db.Close()
		db = nil
	}
	dbPath = path
}

// GetDB opens the database on first use and returns the shared handle.
func GetDB() (*sql.DB, error) {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		return db, nil
	}
	if dbPath == "" {
		return nil, ErrNotConfigured
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// A single connection serialises writers without SQLITE_BUSY churn
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	utils.Debug("State database opened at %s", dbPath)
	db = conn
	return db, nil
}

// CloseDB closes the shared handle. The next GetDB reopens it.
func CloseDB() {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db != nil {
		if err := db.Close(); err != nil {
			utils.Debug("Error closing state database: %v", err)
		}
		db = nil
	}
}
