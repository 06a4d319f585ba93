package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/horizon/internal/event"
	"github.com/lazypower/horizon/internal/index"
)

// InsertEvent queues an event for the scanner. The event must already carry
// its derived id; queuing the same id twice is a no-op and reports false.
func (db *DB) InsertEvent(ctx context.Context, ev event.Record) (bool, error) {
	return db.insertEvent(ctx, ev, false)
}

// ArchiveEvent stores an event the scanner has already ingested. It joins the
// index corpus but is never returned by FetchRecent.
func (db *DB) ArchiveEvent(ctx context.Context, ev event.Record) (bool, error) {
	return db.insertEvent(ctx, ev, true)
}

func (db *DB) insertEvent(ctx context.Context, ev event.Record, consumed bool) (bool, error) {
	if ev.ID == "" {
		return false, fmt.Errorf("insert event: missing id")
	}
	meta, err := encodeJSON(ev.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}
	related, err := encodeJSON(ev.Related)
	if err != nil {
		return false, fmt.Errorf("encode related: %w", err)
	}

	now := time.Now().UnixMilli()
	var consumedAt any
	if consumed {
		consumedAt = now
	}
	result, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (event_id, source, content, tag, resonance, ts, metadata, related, created_at, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Source, ev.Content, ev.Tag, ev.Resonance, ev.Timestamp.UnixNano(), meta, related, now, consumedAt)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// FetchRecent returns up to limit queued events, oldest first, and marks
// them consumed so the next call moves on.
func (db *DB) FetchRecent(ctx context.Context, limit int) ([]event.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin fetch: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT seq, event_id, source, content, tag, resonance, ts, metadata, related
		FROM events WHERE consumed_at IS NULL ORDER BY seq LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}

	var (
		events []event.Record
		seqs   []any
	)
	for rows.Next() {
		var seq int64
		ev, err := scanEvent(rows, &seq)
		if err != nil {
			rows.Close()
			return nil, err
		}
		events = append(events, ev)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate pending events: %w", err)
	}
	rows.Close()

	if len(seqs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seqs)), ",")
	args := append([]any{time.Now().UnixMilli()}, seqs...)
	if _, err := tx.ExecContext(ctx,
		"UPDATE events SET consumed_at = ? WHERE seq IN ("+placeholders+")", args...); err != nil {
		return nil, fmt.Errorf("mark consumed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit fetch: %w", err)
	}
	return events, nil
}

// PendingCount returns the number of queued events not yet fetched.
func (db *DB) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE consumed_at IS NULL").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// GetEvent returns a stored event by id, or nil if it does not exist.
func (db *DB) GetEvent(ctx context.Context, id string) (*event.Record, error) {
	row := db.QueryRowContext(ctx, `
		SELECT seq, event_id, source, content, tag, resonance, ts, metadata, related
		FROM events WHERE event_id = ?
	`, id)
	var seq int64
	ev, err := scanEvent(row, &seq)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Documents returns the newest stored event contents for the semantic index.
func (db *DB) Documents(ctx context.Context, limit int) ([]index.Document, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT event_id, content FROM events ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []index.Document
	for rows.Next() {
		var d index.Document
		if err := rows.Scan(&d.ID, &d.Content); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// PruneEvents deletes consumed events whose timestamp is before cutoff.
func (db *DB) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		"DELETE FROM events WHERE consumed_at IS NOT NULL AND ts < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner, seq *int64) (event.Record, error) {
	var (
		ev            event.Record
		ts            int64
		meta, related sql.NullString
	)
	err := r.Scan(seq, &ev.ID, &ev.Source, &ev.Content, &ev.Tag, &ev.Resonance, &ts, &meta, &related)
	if err == sql.ErrNoRows {
		return ev, err
	}
	if err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}
	ev.Timestamp = time.Unix(0, ts).UTC()
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &ev.Metadata); err != nil {
			return ev, fmt.Errorf("decode metadata of %s: %w", ev.ID, err)
		}
	}
	if related.Valid && related.String != "" {
		if err := json.Unmarshal([]byte(related.String), &ev.Related); err != nil {
			return ev, fmt.Errorf("decode related of %s: %w", ev.ID, err)
		}
	}
	return ev, nil
}

// encodeJSON returns nil for empty values so the column stays NULL.
func encodeJSON[T any](v T) (any, error) {
	switch x := any(v).(type) {
	case map[string]string:
		if len(x) == 0 {
			return nil, nil
		}
	case []string:
		if len(x) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
