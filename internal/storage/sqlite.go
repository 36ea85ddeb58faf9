// Package storage owns the live SQLite handle and everything that guards
// it: connection setup, schema initialization, timestamped backups, file
// watching, and the access coordinator that sequences path resolution,
// permission validation, integrity checking, and connection through a
// single state machine.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// MemoryPath is the path reported for an in-memory database.
const MemoryPath = ":memory:"

// OpenOptions are the connection pragmas applied to every new handle.
type OpenOptions struct {
	JournalMode string        // WAL, DELETE, TRUNCATE, MEMORY
	BusyTimeout time.Duration // SQLite-side lock wait before SQLITE_BUSY
	ForeignKeys bool
}

// DefaultOpenOptions returns the pragmas used when nothing is configured:
// WAL journaling, a five second busy timeout, and foreign keys on.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		JournalMode: "WAL",
		BusyTimeout: 5 * time.Second,
		ForeignKeys: true,
	}
}

// DSN builds the driver connection string for a database file.
func (o OpenOptions) DSN(path string) string {
	mode := strings.ToUpper(o.JournalMode)
	if mode == "" {
		mode = "WAL"
	}
	busy := o.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	fk := 0
	if o.ForeignKeys {
		fk = 1
	}
	return fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(%d)",
		path, mode, busy.Milliseconds(), fk)
}

// Open opens the database file at path and verifies the handle with a
// liveness probe. The pool is pinned to one connection so the process never
// competes with itself for the write lock.
func Open(ctx context.Context, path string, opts OpenOptions) (*sql.DB, error) {
	db, err := sql.Open("sqlite", opts.DSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := Probe(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a private in-memory database. The pool is pinned to a
// single never-expiring connection; an in-memory database lives exactly as
// long as its connection does.
func OpenMemory(ctx context.Context, opts OpenOptions) (*sql.DB, error) {
	db, err := sql.Open("sqlite", MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if opts.ForeignKeys {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}
	if err := Probe(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Probe runs the canary query that tells a live connection from a dead one.
func Probe(ctx context.Context, db *sql.DB) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("probing database: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("probing database: unexpected answer %d", one)
	}
	return nil
}

// SidecarPaths returns the WAL, shared-memory, and rollback-journal paths
// that may accompany a database file.
func SidecarPaths(path string) []string {
	return []string{path + "-wal", path + "-shm", path + "-journal"}
}

// RemoveDatabaseFiles deletes the database file and any sidecars. Missing
// files are not an error.
func RemoveDatabaseFiles(path string) error {
	for _, p := range append([]string{path}, SidecarPaths(path)...) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}
