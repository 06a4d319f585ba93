package horizon

import (
	"sort"
	"strings"
	"time"

	"github.com/lazypower/horizon/internal/pattern"
)

// Trend classifies a pattern's confidence trajectory.
type Trend string

const (
	TrendEmerging      Trend = "emerging"
	TrendStrengthening Trend = "strengthening"
	TrendWeakening     Trend = "weakening"
)

const (
	maxTrendSamples  = 16
	maxEmergingTable = 1024
)

// EmergingPattern is a pattern whose confidence crossed the emergence
// threshold, with the confidence samples that decide its trend.
type EmergingPattern struct {
	PatternID string    `json:"pattern_id"`
	Length    int       `json:"length"`
	Query     string    `json:"query"` // signature contents joined, used for index lookups
	Trend     Trend     `json:"trend"`
	Samples   []float64 `json:"samples"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

func (e EmergingPattern) clone() EmergingPattern {
	e.Samples = append([]float64(nil), e.Samples...)
	return e
}

// observe appends a confidence sample and reclassifies. The mean of the
// last three samples is compared with the fourth from last; equality keeps
// the current trend.
func (e *EmergingPattern) observe(confidence float64, at time.Time) {
	e.Samples = append(e.Samples, confidence)
	if over := len(e.Samples) - maxTrendSamples; over > 0 {
		e.Samples = append(e.Samples[:0], e.Samples[over:]...)
	}
	e.LastSeen = at

	n := len(e.Samples)
	if n < 4 {
		return
	}
	recent := (e.Samples[n-1] + e.Samples[n-2] + e.Samples[n-3]) / 3
	prior := e.Samples[n-4]
	switch {
	case recent > prior:
		e.Trend = TrendStrengthening
	case recent < prior:
		e.Trend = TrendWeakening
	}
}

// trackEmerging records a detection of p that met the emergence threshold.
// Caller holds s.mu.
func (s *Scanner) trackEmerging(p pattern.Pattern, at time.Time) {
	e, ok := s.emerging[p.ID]
	if !ok {
		if len(s.emerging) >= maxEmergingTable {
			s.evictEmergingLocked()
		}
		e = &EmergingPattern{
			PatternID: p.ID,
			Length:    p.Len(),
			Query:     signatureQuery(p.Signature),
			Trend:     TrendEmerging,
			FirstSeen: at,
		}
		s.emerging[p.ID] = e
	}
	e.observe(p.LastConfidence, at)
}

func (s *Scanner) evictEmergingLocked() {
	var oldest string
	var oldestAt time.Time
	for id, e := range s.emerging {
		if oldest == "" || e.LastSeen.Before(oldestAt) || (e.LastSeen.Equal(oldestAt) && id < oldest) {
			oldest, oldestAt = id, e.LastSeen
		}
	}
	delete(s.emerging, oldest)
}

// emergingLocked returns copies of the emerging table ordered by last
// detection, newest first.
func (s *Scanner) emergingLocked() []EmergingPattern {
	out := make([]EmergingPattern, 0, len(s.emerging))
	for _, e := range s.emerging {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].PatternID < out[j].PatternID
	})
	return out
}

func signatureQuery(sig []pattern.Element) string {
	parts := make([]string, len(sig))
	for i, el := range sig {
		parts[i] = el.Content
	}
	return strings.Join(parts, " ")
}
