package store

import (
	"context"
	"testing"
	"time"

	"github.com/lazypower/horizon/internal/horizon"
)

func mkReport(id string, at time.Time) horizon.Report {
	return horizon.Report{
		ID:              id,
		Timestamp:       at,
		EventsProcessed: 4,
		PatternCount:    2,
		DominantTag:     "calm",
		Warnings: []horizon.Warning{{
			Type:     horizon.WarnHighAnomalies,
			Severity: horizon.SeverityWarning,
			Message:  "4 high anomalies",
			Value:    4,
			At:       at,
		}},
	}
}

func TestPublishAndGetReport(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r := mkReport("r1", t0)
	if err := db.PublishReport(ctx, r); err != nil {
		t.Fatalf("PublishReport: %v", err)
	}

	got, err := db.GetReport(ctx, "r1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got == nil {
		t.Fatal("GetReport returned nil")
	}
	if got.EventsProcessed != 4 || got.DominantTag != "calm" {
		t.Errorf("GetReport = %+v", got)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Type != horizon.WarnHighAnomalies {
		t.Errorf("Warnings = %+v", got.Warnings)
	}
	if !got.Timestamp.Equal(t0) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, t0)
	}
}

func TestGetReportNotFound(t *testing.T) {
	db := testDB(t)
	got, err := db.GetReport(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestListReportsNewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if err := db.PublishReport(ctx, mkReport(id, t0.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("PublishReport: %v", err)
		}
	}

	got, err := db.ListReports(ctx, 2)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListReports = %d, want 2", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("order = %s,%s, want c,b", got[0].ID, got[1].ID)
	}
}
