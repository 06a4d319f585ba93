package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveState replaces the persisted scanner snapshot.
func (db *DB) SaveState(ctx context.Context, blob []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO scanner_state (id, blob, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET blob = excluded.blob, saved_at = excluded.saved_at
	`, blob, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState returns the persisted snapshot, or nil if none was saved.
func (db *DB) LoadState(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := db.QueryRowContext(ctx, "SELECT blob FROM scanner_state WHERE id = 1").Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return blob, nil
}

// ClearState removes the persisted snapshot.
func (db *DB) ClearState(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM scanner_state"); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}
