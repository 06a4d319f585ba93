package store

import (
	"bytes"
	"context"
	"testing"
)

func TestLoadStateEmpty(t *testing.T) {
	db := testDB(t)
	blob, err := db.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if blob != nil {
		t.Errorf("expected nil blob, got %q", blob)
	}
}

func TestSaveStateReplaces(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.SaveState(ctx, []byte("first")); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := db.SaveState(ctx, []byte("second")); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	blob, err := db.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !bytes.Equal(blob, []byte("second")) {
		t.Errorf("LoadState = %q, want second", blob)
	}

	var n int
	db.QueryRow("SELECT COUNT(*) FROM scanner_state").Scan(&n)
	if n != 1 {
		t.Errorf("scanner_state rows = %d, want 1", n)
	}
}

func TestClearState(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.SaveState(ctx, []byte("x")); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := db.ClearState(ctx); err != nil {
		t.Fatalf("ClearState: %v", err)
	}
	blob, err := db.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if blob != nil {
		t.Errorf("expected nil after clear, got %q", blob)
	}
}
