package horizon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/horizon/internal/event"
	"github.com/lazypower/horizon/internal/pattern"
	"github.com/lazypower/horizon/internal/resonance"
)

// stateVersion is written in the header line of every snapshot.
const stateVersion = 1

// maxStateLine bounds a single snapshot line when decoding.
const maxStateLine = 16 << 20

// Snapshot is the full mutable state of a Scanner.
type Snapshot struct {
	Version   int
	SavedAt   time.Time
	LastScan  time.Time
	Baseline  Baseline
	Detector  pattern.State
	Resonance []resonance.Entry
	Emerging  []EmergingPattern
	Quiet     []quietMark
	Anomalies []Anomaly
	Reports   []Report
}

// Line kinds of the encoded snapshot.
const (
	kindHeader    = "header"
	kindBaseline  = "baseline"
	kindEvent     = "event"
	kindPattern   = "pattern"
	kindResonance = "resonance"
	kindEmerging  = "emerging"
	kindQuiet     = "quiet"
	kindAnomaly   = "anomaly"
	kindReport    = "report"
)

type stateLine struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type stateHeader struct {
	Version  int       `json:"version"`
	SavedAt  time.Time `json:"saved_at"`
	LastScan time.Time `json:"last_scan"`
}

// Snapshot copies the scanner's state.
func (s *Scanner) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Version:   stateVersion,
		SavedAt:   s.now(),
		LastScan:  s.lastScan,
		Baseline:  s.baseline,
		Detector:  s.detector.Snapshot(),
		Resonance: s.tracker.Snapshot(),
		Emerging:  s.emergingLocked(),
		Quiet:     s.quiet.snapshot(),
		Reports:   cloneReports(s.history),
	}
	snap.Anomalies = make([]Anomaly, len(s.anomalies))
	for i, a := range s.anomalies {
		a.Signals = append([]Signal(nil), a.Signals...)
		snap.Anomalies[i] = a
	}
	return snap
}

// EncodeState renders a snapshot as line-delimited JSON: a header line,
// then one line per record.
func EncodeState(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	write := func(kind string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		return enc.Encode(stateLine{Kind: kind, Data: data})
	}

	if err := write(kindHeader, stateHeader{Version: snap.Version, SavedAt: snap.SavedAt, LastScan: snap.LastScan}); err != nil {
		return nil, err
	}
	if err := write(kindBaseline, snap.Baseline); err != nil {
		return nil, err
	}
	for _, ev := range snap.Detector.Window {
		if err := write(kindEvent, ev); err != nil {
			return nil, err
		}
	}
	for _, p := range snap.Detector.Patterns {
		if err := write(kindPattern, p); err != nil {
			return nil, err
		}
	}
	for _, e := range snap.Resonance {
		if err := write(kindResonance, e); err != nil {
			return nil, err
		}
	}
	for _, e := range snap.Emerging {
		if err := write(kindEmerging, e); err != nil {
			return nil, err
		}
	}
	for _, m := range snap.Quiet {
		if err := write(kindQuiet, m); err != nil {
			return nil, err
		}
	}
	for _, a := range snap.Anomalies {
		if err := write(kindAnomaly, a); err != nil {
			return nil, err
		}
	}
	for _, r := range snap.Reports {
		if err := write(kindReport, r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeState parses an encoded snapshot. Any malformed line, unknown kind
// or missing header fails the whole decode.
func DecodeState(blob []byte) (Snapshot, error) {
	var snap Snapshot
	header := false

	sc := bufio.NewScanner(bytes.NewReader(blob))
	sc.Buffer(make([]byte, 0, 64*1024), maxStateLine)
	n := 0
	for sc.Scan() {
		n++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line stateLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return Snapshot{}, fmt.Errorf("line %d: %w", n, err)
		}
		if !header && line.Kind != kindHeader {
			return Snapshot{}, fmt.Errorf("line %d: expected header, got %q", n, line.Kind)
		}

		var err error
		switch line.Kind {
		case kindHeader:
			if header {
				return Snapshot{}, fmt.Errorf("line %d: second header", n)
			}
			var h stateHeader
			err = json.Unmarshal(line.Data, &h)
			if err == nil && h.Version != stateVersion {
				err = fmt.Errorf("unsupported version %d", h.Version)
			}
			snap.Version, snap.SavedAt, snap.LastScan = h.Version, h.SavedAt, h.LastScan
			header = true
		case kindBaseline:
			err = json.Unmarshal(line.Data, &snap.Baseline)
		case kindEvent:
			var ev event.Record
			err = json.Unmarshal(line.Data, &ev)
			snap.Detector.Window = append(snap.Detector.Window, ev)
		case kindPattern:
			var p pattern.Pattern
			err = json.Unmarshal(line.Data, &p)
			snap.Detector.Patterns = append(snap.Detector.Patterns, p)
		case kindResonance:
			var e resonance.Entry
			err = json.Unmarshal(line.Data, &e)
			snap.Resonance = append(snap.Resonance, e)
		case kindEmerging:
			var e EmergingPattern
			err = json.Unmarshal(line.Data, &e)
			snap.Emerging = append(snap.Emerging, e)
		case kindQuiet:
			var m quietMark
			err = json.Unmarshal(line.Data, &m)
			snap.Quiet = append(snap.Quiet, m)
		case kindAnomaly:
			var a Anomaly
			err = json.Unmarshal(line.Data, &a)
			snap.Anomalies = append(snap.Anomalies, a)
		case kindReport:
			var r Report
			err = json.Unmarshal(line.Data, &r)
			snap.Reports = append(snap.Reports, r)
		default:
			err = fmt.Errorf("unknown kind %q", line.Kind)
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("line %d (%s): %w", n, line.Kind, err)
		}
	}
	if err := sc.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("read state: %w", err)
	}
	if !header {
		return Snapshot{}, fmt.Errorf("missing header")
	}
	return snap, nil
}

// Validate checks a snapshot's invariants without applying it.
func (snap Snapshot) Validate() error {
	if err := snap.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := resonance.ValidateEntries(snap.Resonance); err != nil {
		return fmt.Errorf("resonance: %w", err)
	}
	if snap.Baseline.ResonanceStd < 0 || snap.Baseline.Samples < 0 || snap.Baseline.PatternCount < 0 {
		return fmt.Errorf("baseline: negative statistic")
	}
	for _, e := range snap.Emerging {
		if e.PatternID == "" {
			return fmt.Errorf("emerging pattern with empty id")
		}
		switch e.Trend {
		case TrendEmerging, TrendStrengthening, TrendWeakening:
		default:
			return fmt.Errorf("emerging %s: unknown trend %q", e.PatternID, e.Trend)
		}
	}
	for _, a := range snap.Anomalies {
		if a.EventID == "" || a.Score < 0 {
			return fmt.Errorf("invalid anomaly %q", a.EventID)
		}
	}
	return nil
}

// Restore replaces the scanner's state with snap. An invalid snapshot is
// rejected whole and the scanner is left unchanged.
func (s *Scanner) Restore(snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resetLocked(); err != nil {
		return err
	}
	if err := s.detector.Restore(snap.Detector); err != nil {
		return err
	}
	if err := s.tracker.Restore(snap.Resonance); err != nil {
		return err
	}
	for _, ev := range s.detector.Window() {
		s.rememberLocked(ev.ID)
	}
	for _, e := range snap.Emerging {
		if len(s.emerging) >= maxEmergingTable {
			break
		}
		cp := e.clone()
		s.emerging[cp.PatternID] = &cp
	}
	s.quiet.restore(snap.Quiet)
	for _, a := range snap.Anomalies {
		s.recordAnomalyLocked(a)
	}
	s.baseline = snap.Baseline
	s.lastScan = snap.LastScan
	s.history = cloneReports(snap.Reports)
	if over := len(s.history) - s.cfg.HistoryLimit; over > 0 {
		s.history = s.history[over:]
	}
	return nil
}

// SaveState writes the current snapshot to the state store.
func (s *Scanner) SaveState(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	blob, err := EncodeState(s.Snapshot())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.state.SaveState(ctx, blob); err != nil {
		return fmt.Errorf("%w: save: %w", ErrStateUnavailable, err)
	}
	return nil
}

// LoadState restores the scanner from the state store. Nothing saved yet is
// not an error. A snapshot that fails to decode or validate leaves the
// scanner empty with a freshly established baseline and returns an error
// wrapping ErrCorruptState.
func (s *Scanner) LoadState(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	blob, err := s.state.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("%w: load: %w", ErrStateUnavailable, err)
	}
	if blob == nil {
		return nil
	}

	snap, err := DecodeState(blob)
	if err == nil {
		err = s.Restore(snap)
	}
	if err != nil {
		s.mu.Lock()
		resetErr := s.resetLocked()
		s.mu.Unlock()
		if resetErr != nil {
			return resetErr
		}
		s.EstablishBaseline()
		return fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	return nil
}
