package horizon

import (
	"time"

	"github.com/lazypower/horizon/internal/event"
)

// QuietType is the kind of low-activity signal an event carries.
type QuietType string

const (
	QuietLowResonance QuietType = "low_resonance"
	QuietKeyword      QuietType = "keyword"
	QuietStill        QuietType = "still"
)

var quietTypes = []QuietType{QuietLowResonance, QuietKeyword, QuietStill}

const (
	quietWindow        = 10 * time.Minute
	lowResonanceCutoff = 0.2
)

// Metadata keys consulted for the still marker.
var stillKeys = []string{"phase", "label"}

// quietMark is one ingested event and the indicator types it carried.
type quietMark struct {
	At    time.Time   `json:"at"`
	Types []QuietType `json:"types,omitempty"`
}

// quietTracker keeps the newest window_size ingestions. Density for a type
// is the share of those ingested in the last ten minutes that carried it.
type quietTracker struct {
	limit    int
	keywords map[string]bool
	still    string
	marks    []quietMark
}

func newQuietTracker(limit int, keywords []string, still string) *quietTracker {
	q := &quietTracker{
		limit:    limit,
		keywords: make(map[string]bool, len(keywords)),
		still:    still,
	}
	for _, kw := range keywords {
		q.keywords[kw] = true
	}
	return q
}

// classify returns every indicator type ev carries.
func (q *quietTracker) classify(ev event.Record) []QuietType {
	var types []QuietType
	if ev.Resonance < lowResonanceCutoff {
		types = append(types, QuietLowResonance)
	}
	if q.keywords[ev.Tag] {
		types = append(types, QuietKeyword)
	}
	if q.still != "" {
		for _, k := range stillKeys {
			if ev.Metadata[k] == q.still {
				types = append(types, QuietStill)
				break
			}
		}
	}
	return types
}

func (q *quietTracker) record(ev event.Record, at time.Time) {
	q.push(quietMark{At: at, Types: q.classify(ev)})
	q.prune(at)
}

func (q *quietTracker) push(m quietMark) {
	q.marks = append(q.marks, m)
	if over := len(q.marks) - q.limit; over > 0 {
		q.marks = append(q.marks[:0], q.marks[over:]...)
	}
}

// prune drops marks older than the quiet window. Marks are in ingestion
// order, so the cut is a prefix.
func (q *quietTracker) prune(now time.Time) {
	cutoff := now.Add(-quietWindow)
	i := 0
	for i < len(q.marks) && q.marks[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		q.marks = append(q.marks[:0], q.marks[i:]...)
	}
}

// density returns the current density of every indicator type. The
// denominator is the number of retained marks, not window_size, so on a
// sparse stream a single quiet event yields density 1.
func (q *quietTracker) density(now time.Time) map[QuietType]float64 {
	q.prune(now)
	counts := make(map[QuietType]int, len(quietTypes))
	for _, m := range q.marks {
		for _, t := range m.Types {
			counts[t]++
		}
	}
	out := make(map[QuietType]float64, len(quietTypes))
	for _, t := range quietTypes {
		out[t] = 0
		if len(q.marks) > 0 {
			out[t] = float64(counts[t]) / float64(len(q.marks))
		}
	}
	return out
}

func (q *quietTracker) snapshot() []quietMark {
	out := make([]quietMark, len(q.marks))
	for i, m := range q.marks {
		m.Types = append([]QuietType(nil), m.Types...)
		out[i] = m
	}
	return out
}

func (q *quietTracker) restore(marks []quietMark) {
	q.marks = nil
	for _, m := range marks {
		m.Types = append([]QuietType(nil), m.Types...)
		q.push(m)
	}
}
