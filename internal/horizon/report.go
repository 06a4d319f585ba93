package horizon

import (
	"fmt"
	"maps"
	"sort"
	"time"
)

// Report is the result of one completed scan. It is never modified after
// Scan returns it.
type Report struct {
	ID              string                `json:"id"`
	Timestamp       time.Time             `json:"timestamp"`
	EventsProcessed int                   `json:"events_processed"`
	EventsSkipped   int                   `json:"events_skipped"`
	PatternCount    int                   `json:"pattern_count"`
	Emerging        EmergingSummary       `json:"emerging_patterns"`
	QuietDensity    map[QuietType]float64 `json:"quiet_density"`
	Anomalies       AnomalySummary        `json:"anomalies"`
	Alignments      []Alignment           `json:"harmonic_alignments"`
	Resonance       map[string]float64    `json:"resonance"`
	DominantTag     string                `json:"dominant_tag,omitempty"`
	Warnings        []Warning             `json:"warnings"`
}

// EmergingSummary counts emerging patterns by trend.
type EmergingSummary struct {
	Total    int               `json:"total"`
	Counts   map[Trend]int     `json:"counts"`
	Patterns []EmergingPattern `json:"patterns"`
}

// AnomalySummary describes the retained anomalies.
type AnomalySummary struct {
	Count   int       `json:"count"`
	Average float64   `json:"average"`
	High    []Anomaly `json:"high"`
}

// Alignment is an emerging pattern with related semantic index entries.
type Alignment struct {
	PatternID string       `json:"pattern_id"`
	Entries   []IndexEntry `json:"entries"`
}

// ScanResult is what Scan returns. TooSoon reports a skipped scan, in which
// case Report is empty and NextScan is the earliest time a scan will run.
type ScanResult struct {
	Report   Report
	TooSoon  bool
	NextScan time.Time
}

// clone returns a copy sharing no maps or slices with r.
func (r Report) clone() Report {
	r.Emerging.Counts = maps.Clone(r.Emerging.Counts)
	if r.Emerging.Patterns != nil {
		ps := make([]EmergingPattern, len(r.Emerging.Patterns))
		for i, p := range r.Emerging.Patterns {
			ps[i] = p.clone()
		}
		r.Emerging.Patterns = ps
	}
	r.QuietDensity = maps.Clone(r.QuietDensity)
	if r.Anomalies.High != nil {
		high := make([]Anomaly, len(r.Anomalies.High))
		for i, a := range r.Anomalies.High {
			a.Signals = append([]Signal(nil), a.Signals...)
			high[i] = a
		}
		r.Anomalies.High = high
	}
	if r.Alignments != nil {
		al := make([]Alignment, len(r.Alignments))
		for i, a := range r.Alignments {
			a.Entries = append([]IndexEntry(nil), a.Entries...)
			al[i] = a
		}
		r.Alignments = al
	}
	r.Resonance = maps.Clone(r.Resonance)
	r.Warnings = append([]Warning(nil), r.Warnings...)
	return r
}

func cloneReports(rs []Report) []Report {
	if rs == nil {
		return nil
	}
	out := make([]Report, len(rs))
	for i, r := range rs {
		out[i] = r.clone()
	}
	return out
}

func summarizeEmerging(patterns []EmergingPattern) EmergingSummary {
	sum := EmergingSummary{
		Total: len(patterns),
		Counts: map[Trend]int{
			TrendEmerging:      0,
			TrendStrengthening: 0,
			TrendWeakening:     0,
		},
		Patterns: patterns,
	}
	for _, p := range patterns {
		sum.Counts[p.Trend]++
	}
	return sum
}

// thresholdWarnings evaluates the report-level alert conditions.
func thresholdWarnings(r Report, quietThreshold float64) []Warning {
	var out []Warning

	types := make([]QuietType, 0, len(r.QuietDensity))
	for t := range r.QuietDensity {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		d := r.QuietDensity[t]
		if d > quietThreshold {
			out = append(out, Warning{
				Type:     WarnQuietDensity,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("quiet density for %s is %.2f (threshold %.2f)", t, d, quietThreshold),
				Value:    d,
				At:       r.Timestamp,
			})
		}
	}

	if n := len(r.Anomalies.High); n > maxHighAnomalies {
		out = append(out, Warning{
			Type:     WarnHighAnomalies,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("%d high anomalies active", n),
			Value:    float64(n),
			At:       r.Timestamp,
		})
	}

	if n := r.Emerging.Counts[TrendStrengthening]; n > maxStrengthening {
		out = append(out, Warning{
			Type:     WarnStrengthening,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%d patterns strengthening", n),
			Value:    float64(n),
			At:       r.Timestamp,
		})
	}
	return out
}

func collaboratorWarning(what string, err error, at time.Time) Warning {
	return Warning{
		Type:     WarnCollaborator,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("%s: %v", what, err),
		At:       at,
	}
}
