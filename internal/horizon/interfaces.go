package horizon

import (
	"context"

	"github.com/lazypower/horizon/internal/event"
)

// EventSource supplies events on demand. FetchRecent returns at most limit
// events the scanner has not seen yet, oldest first.
type EventSource interface {
	FetchRecent(ctx context.Context, limit int) ([]event.Record, error)
}

// IndexEntry is one item a semantic index considers related to a pattern.
type IndexEntry struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SemanticIndex finds indexed entries related to a pattern. It is optional.
type SemanticIndex interface {
	Related(ctx context.Context, patternID, query string) ([]IndexEntry, error)
}

// StateStore persists the scanner's snapshot. LoadState returns nil, nil when
// nothing has been saved yet.
type StateStore interface {
	SaveState(ctx context.Context, blob []byte) error
	LoadState(ctx context.Context) ([]byte, error)
}

// AlertSink receives the warnings produced by each scan.
type AlertSink interface {
	Send(ctx context.Context, warnings []Warning) error
}

// ReportSink archives completed reports.
type ReportSink interface {
	PublishReport(ctx context.Context, r Report) error
}
