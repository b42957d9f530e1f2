// Package sqlite provides an embedded, single-file ledger.Store for
// deployments without a PostgreSQL server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cory-johannsen/crypdoebucks/internal/storage/migration"
	"github.com/cory-johannsen/crypdoebucks/internal/storage/sqlite/migrations"
)

const pragmas = "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"

// Open opens the ledger database at path, creating it if needed, and applies
// the embedded schema.
//
// Precondition: path names a file; in-memory databases are not supported.
// Postcondition: Returns a migrated store or a non-nil error.
func Open(ctx context.Context, path string) (*LedgerStore, error) {
	dsn, err := fileDSN(path)
	if err != nil {
		return nil, err
	}

	mg, err := NewMigrator(path)
	if err != nil {
		return nil, err
	}
	err = mg.Up(0)
	_ = mg.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlite: applying migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}
	// One writer connection keeps SQLite's file lock out of the way of the
	// store's own serialization.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	return &LedgerStore{db: db}, nil
}

// NewMigrator opens a migrator for the ledger schema in the file at path,
// creating its parent directory if needed.
//
// Postcondition: Returns a Migrator the caller must Close, or a non-nil error.
func NewMigrator(path string) (*migration.Migrator, error) {
	dsn, err := fileDSN(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(path)), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating directory for %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening for migration: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migration driver: %w", err)
	}
	return migration.FromDriver(migrations.FS, "sqlite", driver)
}

func fileDSN(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("sqlite: storage path is required")
	}
	if strings.Contains(path, ":memory:") {
		return "", fmt.Errorf("sqlite: in-memory databases are not supported; use the memory backend")
	}
	return filepath.Clean(path) + pragmas, nil
}

// Health pings the database.
func (s *LedgerStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *LedgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
