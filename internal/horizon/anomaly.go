package horizon

import (
	"math"
	"sort"
	"time"

	"github.com/lazypower/horizon/internal/event"
)

// Signal names one anomaly detector.
type Signal string

const (
	SignalDrift   Signal = "resonance_drift"
	SignalExtreme Signal = "extreme_intensity"
	SignalSource  Signal = "unusual_source"
)

const (
	extremeHigh = 0.9
	extremeLow  = 0.1
)

// Anomaly is the score of one event on which at least one signal fired.
// Score is the mean magnitude of the fired signals.
type Anomaly struct {
	EventID   string    `json:"event_id"`
	Source    string    `json:"source"`
	Tag       string    `json:"tag"`
	Resonance float64   `json:"resonance"`
	Score     float64   `json:"score"`
	Signals   []Signal  `json:"signals"`
	High      bool      `json:"high"`
	At        time.Time `json:"at"`
}

// Baseline is the reference point for resonance drift.
type Baseline struct {
	PatternCount  int       `json:"pattern_count"`
	ResonanceMean float64   `json:"resonance_mean"`
	ResonanceStd  float64   `json:"resonance_std"`
	Samples       int       `json:"samples"`
	EstablishedAt time.Time `json:"established_at"`
}

// Established reports whether drift can be measured against b. A baseline
// needs at least two samples to carry a meaningful spread.
func (b Baseline) Established() bool {
	return !b.EstablishedAt.IsZero() && b.Samples >= 2
}

func newBaseline(patterns int, samples []float64, at time.Time) Baseline {
	b := Baseline{PatternCount: patterns, Samples: len(samples), EstablishedAt: at}
	if len(samples) == 0 {
		return b
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	b.ResonanceMean = sum / float64(len(samples))
	var sq float64
	for _, v := range samples {
		d := v - b.ResonanceMean
		sq += d * d
	}
	b.ResonanceStd = math.Sqrt(sq / float64(len(samples)))
	return b
}

// scoreLocked runs the three signals over ev. Caller holds s.mu.
func (s *Scanner) scoreLocked(ev event.Record, at time.Time) (Anomaly, bool) {
	var signals []Signal
	var magnitudes []float64

	if s.baseline.Established() {
		drift := math.Abs(ev.Resonance - s.baseline.ResonanceMean)
		if drift > 2*s.baseline.ResonanceStd {
			signals = append(signals, SignalDrift)
			magnitudes = append(magnitudes, math.Min(drift, 1))
		}
	}
	switch {
	case ev.Resonance > extremeHigh:
		signals = append(signals, SignalExtreme)
		magnitudes = append(magnitudes, ev.Resonance)
	case ev.Resonance < extremeLow:
		signals = append(signals, SignalExtreme)
		magnitudes = append(magnitudes, 1-ev.Resonance)
	}
	if len(s.allowSources) > 0 && !s.allowSources[ev.Source] {
		signals = append(signals, SignalSource)
		magnitudes = append(magnitudes, 1)
	}

	if len(signals) == 0 {
		return Anomaly{}, false
	}
	var sum float64
	for _, m := range magnitudes {
		sum += m
	}
	score := sum / float64(len(magnitudes))
	return Anomaly{
		EventID:   ev.ID,
		Source:    ev.Source,
		Tag:       ev.Tag,
		Resonance: ev.Resonance,
		Score:     score,
		Signals:   signals,
		High:      score > s.cfg.AnomalyScoreThreshold,
		At:        at,
	}, true
}

// recordAnomalyLocked keeps the newest window_size anomalies.
func (s *Scanner) recordAnomalyLocked(a Anomaly) {
	s.anomalies = append(s.anomalies, a)
	if over := len(s.anomalies) - s.cfg.WindowSize; over > 0 {
		clear(s.anomalies[:over])
		s.anomalies = s.anomalies[over:]
	}
}

// summarizeAnomalies returns the count, average score and the high
// anomalies ranked by score.
func summarizeAnomalies(all []Anomaly) AnomalySummary {
	sum := AnomalySummary{Count: len(all)}
	if len(all) == 0 {
		return sum
	}
	var total float64
	for _, a := range all {
		total += a.Score
		if a.High {
			a.Signals = append([]Signal(nil), a.Signals...)
			sum.High = append(sum.High, a)
		}
	}
	sum.Average = total / float64(len(all))
	sort.SliceStable(sum.High, func(i, j int) bool {
		if sum.High[i].Score != sum.High[j].Score {
			return sum.High[i].Score > sum.High[j].Score
		}
		return sum.High[i].EventID < sum.High[j].EventID
	})
	return sum
}
