package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lazypower/horizon/internal/horizon"
)

// PublishReport archives a completed scan report. Re-publishing an id
// overwrites it.
func (db *DB) PublishReport(ctx context.Context, r horizon.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports (id, ts, events_processed, warning_count, body)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Timestamp.UnixMilli(), r.EventsProcessed, len(r.Warnings), string(body))
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// ListReports returns up to limit archived reports, newest first.
func (db *DB) ListReports(ctx context.Context, limit int) ([]horizon.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, "SELECT body FROM reports ORDER BY ts DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []horizon.Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var r horizon.Report
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetReport returns an archived report by id, or nil if it does not exist.
func (db *DB) GetReport(ctx context.Context, id string) (*horizon.Report, error) {
	var body string
	err := db.QueryRowContext(ctx, "SELECT body FROM reports WHERE id = ?", id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	var r horizon.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}
