// Package store is the SQLite layer behind horizon: the pending event queue
// the scanner pulls from, the persisted scanner snapshot, and the archive of
// completed scan reports.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// DB is the horizon database. Path is the file it was opened from, or
// ":memory:".
type DB struct {
	*sql.DB
	Path string
}

// DefaultDBPath returns ~/.horizon/horizon.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".horizon", "horizon.db"), nil
}

// Open opens or creates the database file at path, creating its directory,
// and brings the schema up to date.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(path)
}

// OpenMemory opens a private in-memory database, used by tests and by
// one-shot commands that need no persistence.
func OpenMemory() (*DB, error) {
	return open(memoryPath)
}

func open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == memoryPath {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}

	db := &DB{DB: sqlDB, Path: path}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if db.Path != memoryPath {
		// The scanner writes while the server reads.
		pragmas = append(pragmas,
			"PRAGMA journal_mode=WAL",
			"PRAGMA mmap_size=268435456",
		)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// Stats summarizes what the database holds.
type Stats struct {
	Pending      int       `json:"pending"`
	Consumed     int       `json:"consumed"`
	Reports      int       `json:"reports"`
	StateSavedAt time.Time `json:"state_saved_at,omitzero"`
}

// Stats counts queued and consumed events and archived reports, and reports
// when the scanner snapshot was last saved.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var (
		st      Stats
		savedAt sql.NullInt64
	)
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events WHERE consumed_at IS NULL),
			(SELECT COUNT(*) FROM events WHERE consumed_at IS NOT NULL),
			(SELECT COUNT(*) FROM reports),
			(SELECT saved_at FROM scanner_state WHERE id = 1)
	`).Scan(&st.Pending, &st.Consumed, &st.Reports, &savedAt)
	if err != nil {
		return Stats{}, fmt.Errorf("db stats: %w", err)
	}
	if savedAt.Valid {
		st.StateSavedAt = time.UnixMilli(savedAt.Int64).UTC()
	}
	return st, nil
}
