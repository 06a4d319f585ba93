// Package horizon runs periodic scans over an event stream: it feeds events
// to the pattern detector and the resonance tracker, follows pattern trends,
// measures quiet density, scores anomalies and raises warnings.
package horizon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/horizon/internal/config"
	"github.com/lazypower/horizon/internal/event"
	"github.com/lazypower/horizon/internal/pattern"
	"github.com/lazypower/horizon/internal/resonance"
)

var (
	// ErrDuplicate marks an event whose id was already ingested.
	ErrDuplicate = errors.New("duplicate event")
	// ErrCorruptState marks a persisted snapshot that could not be applied.
	ErrCorruptState = errors.New("corrupt state")
	// ErrStateUnavailable marks a state store that failed to load or save.
	ErrStateUnavailable = errors.New("state store unavailable")
)

// maxAlignmentQueries bounds semantic index calls per scan.
const maxAlignmentQueries = 32

// Scanner orchestrates ingestion and scans. Ingest may be called from many
// goroutines; concurrent Scan calls are serialized.
type Scanner struct {
	cfg          config.EngineConfig
	classifier   *event.Classifier
	allowSources map[string]bool
	allowTags    map[string]bool

	source  EventSource
	index   SemanticIndex
	state   StateStore
	alerts  AlertSink
	reports ReportSink

	scanMu sync.Mutex // one scan at a time

	mu        sync.Mutex // guards everything below
	now       func() time.Time
	detector  *pattern.Detector
	tracker   *resonance.Tracker
	seen      map[string]struct{}
	seenOrder []string
	emerging  map[string]*EmergingPattern
	quiet     *quietTracker
	anomalies []Anomaly
	baseline  Baseline
	processed int
	skipped   int
	lastScan  time.Time
	history   []Report
	carry     []Warning // collaborator failures raised after a report was returned
}

// New creates a Scanner. Invalid configuration is rejected, never clamped.
func New(cfg config.EngineConfig) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{
		cfg:          cfg,
		classifier:   event.NewClassifier(cfg.KeywordTags),
		allowSources: set(cfg.SourceAllowList),
		allowTags:    set(cfg.TagAllowList),
		now:          time.Now,
	}
	if err := s.resetLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func set(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// resetLocked replaces all mutable state with an empty one.
func (s *Scanner) resetLocked() error {
	det, err := pattern.NewDetector(s.cfg.WindowSize, s.cfg.MinPatternLength)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}
	tr, err := resonance.NewTracker(s.cfg.DecayRate)
	if err != nil {
		return fmt.Errorf("create tracker: %w", err)
	}
	tr.SetClock(s.now)

	s.detector = det
	s.tracker = tr
	s.seen = make(map[string]struct{})
	s.seenOrder = nil
	s.emerging = make(map[string]*EmergingPattern)
	s.quiet = newQuietTracker(s.cfg.WindowSize, s.cfg.QuietKeywords, s.cfg.StillMarker)
	s.anomalies = nil
	s.baseline = Baseline{}
	s.processed = 0
	s.skipped = 0
	s.lastScan = time.Time{}
	s.history = nil
	s.carry = nil
	return nil
}

// SetSource sets the pull-side event source consulted by Scan.
func (s *Scanner) SetSource(src EventSource) { s.source = src }

// SetIndex sets the optional semantic index used for harmonic alignments.
func (s *Scanner) SetIndex(idx SemanticIndex) { s.index = idx }

// SetStateStore sets where snapshots are saved after each scan.
func (s *Scanner) SetStateStore(st StateStore) { s.state = st }

// SetAlertSink sets the receiver of scan warnings.
func (s *Scanner) SetAlertSink(a AlertSink) { s.alerts = a }

// SetReportSink sets the archive for completed reports.
func (s *Scanner) SetReportSink(r ReportSink) { s.reports = r }

// SetClock replaces the wall clock, mainly for tests.
func (s *Scanner) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.tracker.SetClock(now)
}

// Config returns the engine configuration.
func (s *Scanner) Config() config.EngineConfig { return s.cfg }

// Ingest feeds one event to the detector and the tracker. Malformed events
// return an error wrapping event.ErrMalformed, repeats one wrapping
// ErrDuplicate; neither changes any state besides the skip counter.
func (s *Scanner) Ingest(ev event.Record) error {
	ev, err := s.prepare(ev)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.skipped++
		return err
	}
	if _, dup := s.seen[ev.ID]; dup {
		s.skipped++
		return fmt.Errorf("%w: %s", ErrDuplicate, ev.ID)
	}
	s.rememberLocked(ev.ID)

	now := s.now()
	for _, p := range s.detector.Add(ev) {
		if p.Confidence >= s.cfg.PatternEmergenceThreshold {
			s.trackEmerging(p, now)
		}
	}
	s.tracker.Update(ev)
	s.quiet.record(ev, now)
	if a, ok := s.scoreLocked(ev, now); ok {
		s.recordAnomalyLocked(a)
	}
	s.processed++
	return nil
}

// prepare classifies, identifies and validates an incoming event.
func (s *Scanner) prepare(ev event.Record) (event.Record, error) {
	ev = s.classifier.Apply(ev.Clone())
	if ev.Tag == "" {
		ev.Tag = event.DefaultTag
	}
	if ev.ID == "" {
		ev = ev.WithID()
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	if len(s.allowTags) > 0 && !s.allowTags[ev.Tag] {
		return ev, fmt.Errorf("%w: tag %q not allowed", event.ErrMalformed, ev.Tag)
	}
	return ev, nil
}

// rememberLocked tracks the ids of the last 2×window_size accepted events,
// the same span the detector's window covers.
func (s *Scanner) rememberLocked(id string) {
	s.seen[id] = struct{}{}
	s.seenOrder = append(s.seenOrder, id)
	if over := len(s.seenOrder) - s.detector.Capacity(); over > 0 {
		for _, old := range s.seenOrder[:over] {
			delete(s.seen, old)
		}
		s.seenOrder = append(s.seenOrder[:0], s.seenOrder[over:]...)
	}
}

// EstablishBaseline recomputes the anomaly baseline from the current pattern
// table and resonance history. Scan never calls it.
func (s *Scanner) EstablishBaseline() Baseline {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = newBaseline(s.detector.Count(), s.tracker.Samples(), s.now())
	return s.baseline
}

// Baseline returns the current baseline.
func (s *Scanner) Baseline() Baseline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline
}

// Scan pulls pending events from the source, ingests them and assembles a
// report. A call within scan_interval of the previous scan is skipped.
// Collaborator failures never fail a scan; they become warnings.
func (s *Scanner) Scan(ctx context.Context) ScanResult {
	return s.scan(ctx, 0)
}

// scan runs one scan. slack shortens the scan_interval gate so a timer that
// fires a little early is not turned away.
func (s *Scanner) scan(ctx context.Context, slack time.Duration) ScanResult {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.mu.Lock()
	now, last := s.now(), s.lastScan
	s.mu.Unlock()
	if interval := s.cfg.ScanInterval(); !last.IsZero() && now.Sub(last) < interval-slack {
		return ScanResult{TooSoon: true, NextScan: last.Add(interval)}
	}

	var warnings []Warning
	if s.source != nil {
		evs, err := s.source.FetchRecent(ctx, s.cfg.WindowSize)
		if err != nil {
			log.Printf("scan: fetch events: %v", err)
			warnings = append(warnings, collaboratorWarning("event source", err, now))
		}
		for _, ev := range evs {
			if err := s.Ingest(ev); err != nil {
				log.Printf("scan: skip event %s: %v", ev.ID, err)
			}
		}
	}

	s.mu.Lock()
	r := s.assembleLocked(now)
	window := maps.Clone(s.seen)
	s.mu.Unlock()

	var alignWarnings []Warning
	r.Alignments, alignWarnings = s.align(ctx, r.Emerging.Patterns, window, now)

	r.Warnings = append(r.Warnings, warnings...)
	r.Warnings = append(r.Warnings, alignWarnings...)
	r.Warnings = append(r.Warnings, thresholdWarnings(r, s.cfg.QuietDensityThreshold)...)

	s.keepReport(r)

	if s.state != nil {
		if err := s.SaveState(ctx); err != nil {
			log.Printf("scan: %v", err)
			r.Warnings = append(r.Warnings, collaboratorWarning("state store", err, now))
			s.keepReport(r)
		}
	}

	if s.reports != nil {
		if err := s.reports.PublishReport(ctx, r.clone()); err != nil {
			log.Printf("scan: archive report %s: %v", r.ID, err)
			r.Warnings = append(r.Warnings, collaboratorWarning("report sink", err, now))
			s.keepReport(r)
		}
	}

	if s.alerts != nil && len(r.Warnings) > 0 {
		if err := s.alerts.Send(ctx, append([]Warning(nil), r.Warnings...)); err != nil {
			log.Printf("scan: send alerts: %v", err)
			s.mu.Lock()
			s.carry = append(s.carry, collaboratorWarning("alert sink", err, now))
			s.mu.Unlock()
		}
	}

	log.Printf("scan: %d events, %d patterns, %d emerging, %d anomalies, %d warnings",
		r.EventsProcessed, r.PatternCount, r.Emerging.Total, r.Anomalies.Count, len(r.Warnings))
	return ScanResult{Report: r}
}

// keepReport stores a copy of r in the scan history, replacing an earlier
// copy of the same report.
func (s *Scanner) keepReport(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 && s.history[n-1].ID == r.ID {
		s.history[n-1] = r.clone()
		return
	}
	s.history = append(s.history, r.clone())
	if over := len(s.history) - s.cfg.HistoryLimit; over > 0 {
		clear(s.history[:over])
		s.history = s.history[over:]
	}
}

// assembleLocked snapshots the ingest state into a report and starts the
// next scan's counters. Caller holds s.mu.
func (s *Scanner) assembleLocked(now time.Time) Report {
	density := s.quiet.density(now)
	scores := s.tracker.CurrentScores()
	dominant, _ := s.tracker.DominantTag(0)

	r := Report{
		ID:              uuid.NewString(),
		Timestamp:       now,
		EventsProcessed: s.processed,
		EventsSkipped:   s.skipped,
		PatternCount:    s.detector.Count(),
		Emerging:        summarizeEmerging(s.emergingLocked()),
		QuietDensity:    density,
		Anomalies:       summarizeAnomalies(s.anomalies),
		Resonance:       scores,
		DominantTag:     dominant,
		Warnings:        s.carry,
	}
	s.carry = nil
	s.processed = 0
	s.skipped = 0
	s.lastScan = now
	return r
}

// align asks the semantic index for entries related to each emerging
// pattern. Entries for events still in the detector window are the
// pattern's own material and are left out. The first failure stops the
// lookups for this scan.
func (s *Scanner) align(ctx context.Context, patterns []EmergingPattern, window map[string]struct{}, now time.Time) ([]Alignment, []Warning) {
	if s.index == nil {
		return nil, nil
	}
	var out []Alignment
	for i, p := range patterns {
		if i == maxAlignmentQueries {
			break
		}
		entries, err := s.index.Related(ctx, p.PatternID, p.Query)
		if err != nil {
			log.Printf("scan: semantic index: %v", err)
			return out, []Warning{collaboratorWarning("semantic index", err, now)}
		}
		var kept []IndexEntry
		for _, e := range entries {
			if _, own := window[e.ID]; !own {
				kept = append(kept, e)
			}
		}
		if len(kept) > 0 {
			out = append(out, Alignment{PatternID: p.PatternID, Entries: kept})
		}
	}
	return out, nil
}

// Reports returns the retained scan history, oldest first.
func (s *Scanner) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneReports(s.history)
}

// Patterns queries the detector's pattern table.
func (s *Scanner) Patterns(q pattern.Query) []pattern.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.Patterns(q)
}

// Emerging returns the emerging-pattern table, most recently detected first.
func (s *Scanner) Emerging() []EmergingPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergingLocked()
}

// Resonance returns the current decayed score per tag.
func (s *Scanner) Resonance() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.CurrentScores()
}

// DominantTag returns the highest scoring tag when it reaches threshold.
func (s *Scanner) DominantTag(threshold float64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.DominantTag(threshold)
}

// QuietDensity returns the current density per quiet indicator type.
func (s *Scanner) QuietDensity() map[QuietType]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiet.density(s.now())
}

// Anomalies returns the retained anomalies, oldest first.
func (s *Scanner) Anomalies() []Anomaly {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Anomaly, len(s.anomalies))
	for i, a := range s.anomalies {
		a.Signals = append([]Signal(nil), a.Signals...)
		out[i] = a
	}
	return out
}
