package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "events: ingested event queue",
		SQL: `
CREATE TABLE events (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id     TEXT NOT NULL UNIQUE,
    source       TEXT NOT NULL,
    content      TEXT NOT NULL,
    tag          TEXT NOT NULL,
    resonance    REAL NOT NULL CHECK (resonance >= 0 AND resonance <= 1),
    ts           INTEGER NOT NULL,   -- unix nanoseconds
    metadata     TEXT,               -- JSON object
    related      TEXT,               -- JSON array of event ids
    created_at   INTEGER NOT NULL,
    consumed_at  INTEGER
);

CREATE INDEX idx_events_pending ON events(consumed_at, seq);
CREATE INDEX idx_events_ts      ON events(ts DESC);
`,
	},
	{
		Version:     2,
		Description: "scanner_state: persisted scanner snapshot",
		SQL: `
CREATE TABLE scanner_state (
    id        INTEGER PRIMARY KEY CHECK (id = 1),
    blob      BLOB NOT NULL,
    saved_at  INTEGER NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "reports: scan report archive",
		SQL: `
CREATE TABLE reports (
    id                TEXT PRIMARY KEY,
    ts                INTEGER NOT NULL,
    events_processed  INTEGER NOT NULL,
    warning_count     INTEGER NOT NULL,
    body              TEXT NOT NULL   -- JSON report
);

CREATE INDEX idx_reports_ts ON reports(ts DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
