package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lazypower/horizon/internal/event"
	"github.com/lazypower/horizon/internal/horizon"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db := testDB(t)
	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "horizon.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", v, len(migrations))
	}
}

func TestFileDatabaseUsesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "horizon.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestStats(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	st, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st != (Stats{}) {
		t.Errorf("empty db stats = %+v", st)
	}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"one", "two", "three"} {
		ev := event.New("s", content, "calm", 0.5, ts.Add(time.Duration(i)*time.Second))
		if _, err := db.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}
	if _, err := db.FetchRecent(ctx, 1); err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if err := db.PublishReport(ctx, horizon.Report{ID: "r1", Timestamp: ts}); err != nil {
		t.Fatalf("PublishReport: %v", err)
	}
	if err := db.SaveState(ctx, []byte("snap")); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	st, err = db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Pending != 2 || st.Consumed != 1 || st.Reports != 1 {
		t.Errorf("stats = %+v, want 2 pending, 1 consumed, 1 report", st)
	}
	if st.StateSavedAt.IsZero() {
		t.Error("StateSavedAt not set after SaveState")
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("SchemaVersion = %d, want 3", v)
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"schema_versions", "events", "scanner_state", "reports"}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestEventsConstraints(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`
		INSERT INTO events (event_id, source, content, tag, resonance, ts, created_at)
		VALUES ('e1', 'sensor', 'hello', 'neutral', 0.5, 1000, 1000)
	`)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO events (event_id, source, content, tag, resonance, ts, created_at)
		VALUES ('e2', 'sensor', 'hello', 'neutral', 1.5, 1000, 1000)
	`)
	if err == nil {
		t.Error("expected error for resonance above 1, got nil")
	}

	_, err = db.Exec(`
		INSERT INTO events (event_id, source, content, tag, resonance, ts, created_at)
		VALUES ('e1', 'sensor', 'again', 'neutral', 0.5, 2000, 1000)
	`)
	if err == nil {
		t.Error("expected error for duplicate event_id, got nil")
	}
}

func TestScannerStateSingleRow(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec("INSERT INTO scanner_state (id, blob, saved_at) VALUES (2, x'00', 1)")
	if err == nil {
		t.Error("expected error for id other than 1, got nil")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := testDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("SchemaVersion after re-migrate = %d, want 3", v)
	}
}

func TestWALMode(t *testing.T) {
	db := testDB(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	// In-memory databases report "memory" instead of WAL
	if mode != "wal" && mode != "memory" {
		t.Errorf("journal_mode = %q, want wal or memory", mode)
	}
}
