package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Database owns the history connection.
//
// This organism composes:
// - SQLite connection with WAL mode (molecule)
// - Embedded migration runner (molecule)
//
// Usage:
//
//	db, err := Open("blur-history.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	repo := NewRepository(db)
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open creates the file and its parent directory if needed, applies
// pending migrations and returns the open database.
func Open(path string) (*Database, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// golang-migrate closes the connection it is given, so migrations run
	// on their own connection before the long-lived one is opened.
	migrateConn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := migrateUp(migrateConn); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	conn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	return &Database{db: conn, path: path}, nil
}

// SchemaVersion reports the applied migration version.
func (d *Database) SchemaVersion() (uint, bool, error) {
	conn, err := NewSQLiteConnection(DefaultConnectionConfig(d.path))
	if err != nil {
		return 0, false, fmt.Errorf("failed to create database connection: %w", err)
	}
	return migrationVersion(conn)
}

// DB returns the underlying connection. Callers must not close it.
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the connection. Further calls are no-ops.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.db = nil
	return nil
}
