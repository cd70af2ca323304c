// Package history stores one row per blur run, with the timing of each of
// its workloads, in a local SQLite database.
package history

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	// Pure Go driver registered as "sqlite".
	_ "modernc.org/sqlite"
)

// ConnectionConfig controls how the history file is opened.
type ConnectionConfig struct {
	Path string
	// BusyTimeout bounds how long a writer waits for another run's lock.
	BusyTimeout time.Duration
	// MaxOpenConns is 1 for the writer; a run writes one row at a time.
	MaxOpenConns int
}

// DefaultConnectionConfig returns the settings Open uses.
func DefaultConnectionConfig(path string) ConnectionConfig {
	return ConnectionConfig{
		Path:         path,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
	}
}

// dsn appends the pragmas as _pragma parameters so the driver applies them
// to every connection it opens, not just the first.
func (c ConnectionConfig) dsn() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + c.Path + "?" + q.Encode()
}

// NewSQLiteConnection opens the history file in WAL mode with foreign keys
// enforced, so deleting a run removes its workloads.
//
// Two runs started at the same time can share a history file; WAL lets one
// list while the other writes.
func NewSQLiteConnection(config ConnectionConfig) (*sql.DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 1
	}

	db, err := sql.Open("sqlite", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", config.Path, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxOpenConns)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", config.Path, err)
	}
	if mode != "wal" {
		db.Close()
		return nil, fmt.Errorf("%s: journal mode is %q, want wal", config.Path, mode)
	}
	return db, nil
}
