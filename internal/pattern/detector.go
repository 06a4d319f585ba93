// Package pattern detects repeated subsequences in a bounded window of
// recent events.
//
// Pattern identity is a 64-bit FNV-1a hash of the ordered (source, tag,
// content prefix) triples. Two genuinely different subsequences that share a
// hash, or that differ only beyond the content prefix, are merged into one
// pattern. This is a known limitation, not something callers should rely on
// being fixed.
package pattern

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/horizon/internal/event"
)

const (
	maxPatternLength = 10   // longest subsequence considered
	contentPrefixLen = 50   // runes of content folded into the signature
	maxMatchRecords  = 32   // match records kept per pattern
	maxPatterns      = 4096 // pattern table capacity
)

// Element is one position of a pattern signature.
type Element struct {
	Source  string `json:"source"`
	Tag     string `json:"tag"`
	Content string `json:"content"` // prefix only
}

// Match records one detection of a pattern.
type Match struct {
	At       time.Time `json:"at"`        // timestamp of the newest event in the occurrence
	EventIDs []string  `json:"event_ids"` // the occurrence that triggered detection
	Earlier  int       `json:"earlier"`   // earlier occurrences found in the window
}

// Pattern is a recurring ordered subsequence of events.
type Pattern struct {
	ID             string    `json:"pattern_id"`
	Signature      []Element `json:"signature"`
	Confidence     float64   `json:"confidence"`      // highest confidence observed
	LastConfidence float64   `json:"last_confidence"` // confidence of the latest detection
	Matches        []Match   `json:"matches"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	Frequency      int       `json:"frequency"`
}

// Len is the number of events in the pattern.
func (p Pattern) Len() int { return len(p.Signature) }

func (p Pattern) clone() Pattern {
	p.Signature = append([]Element(nil), p.Signature...)
	matches := make([]Match, len(p.Matches))
	for i, m := range p.Matches {
		m.EventIDs = append([]string(nil), m.EventIDs...)
		matches[i] = m
	}
	p.Matches = matches
	return p
}

// Query filters the pattern table. Zero values disable a filter.
type Query struct {
	MinConfidence float64
	MinFrequency  int
	Since         time.Time
}

// Detector keeps a bounded window of 2×windowSize events and a table of
// the patterns found in it. It is safe for concurrent use.
type Detector struct {
	mu        sync.Mutex
	window    int
	minLength int
	history   []event.Record
	patterns  map[string]*Pattern
}

// NewDetector creates a Detector.
func NewDetector(windowSize, minLength int) (*Detector, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be > 0, got %d", windowSize)
	}
	if minLength < 1 || minLength > windowSize {
		return nil, fmt.Errorf("min pattern length must be in [1, %d], got %d", windowSize, minLength)
	}
	return &Detector{
		window:    windowSize,
		minLength: minLength,
		history:   make([]event.Record, 0, 2*windowSize),
		patterns:  make(map[string]*Pattern),
	}, nil
}

// Capacity is the number of events the window retains.
func (d *Detector) Capacity() int { return 2 * d.window }

// Add appends ev to the window and searches for earlier occurrences of every
// subsequence ending at ev. It returns copies of the patterns it created or
// updated. Nothing is searched until the window holds 2×minLength events.
func (d *Detector) Add(ev event.Record) []Pattern {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, ev)
	if over := len(d.history) - d.Capacity(); over > 0 {
		n := copy(d.history, d.history[over:])
		d.history = d.history[:n]
	}

	n := len(d.history)
	if n < 2*d.minLength {
		return nil
	}

	var touched []Pattern
	maxLen := min(maxPatternLength, n/2)
	for length := d.minLength; length <= maxLen; length++ {
		start := n - length
		candidate := d.history[start:]

		earlier := 0
		for i := 0; i+length <= start; i++ {
			if sameSequence(d.history[i:i+length], candidate) {
				earlier++
			}
		}
		if earlier == 0 {
			continue
		}

		confidence := math.Min(1, float64(earlier)/(float64(n)/float64(length)))
		p := d.record(candidate, earlier, confidence)
		touched = append(touched, p.clone())
	}
	return touched
}

// record creates or updates the pattern for candidate. Caller holds d.mu.
func (d *Detector) record(candidate []event.Record, earlier int, confidence float64) *Pattern {
	sig := signature(candidate)
	id := Hash(sig)
	newest := candidate[len(candidate)-1].Timestamp

	ids := make([]string, len(candidate))
	for i, ev := range candidate {
		ids[i] = ev.ID
	}
	m := Match{At: newest, EventIDs: ids, Earlier: earlier}

	p, ok := d.patterns[id]
	if !ok {
		p = &Pattern{
			ID:             id,
			Signature:      sig,
			Confidence:     confidence,
			LastConfidence: confidence,
			Matches:        []Match{m},
			FirstSeen:      newest,
			LastSeen:       newest,
			Frequency:      earlier + 1,
		}
		d.patterns[id] = p
		d.evictLocked()
		return p
	}

	p.Frequency++
	p.LastConfidence = confidence
	if confidence > p.Confidence {
		p.Confidence = confidence
	}
	if newest.After(p.LastSeen) {
		p.LastSeen = newest
	}
	p.Matches = append(p.Matches, m)
	if over := len(p.Matches) - maxMatchRecords; over > 0 {
		p.Matches = append([]Match(nil), p.Matches[over:]...)
	}
	return p
}

// evictLocked drops the least recently seen pattern once the table is full.
func (d *Detector) evictLocked() {
	if len(d.patterns) <= maxPatterns {
		return
	}
	var oldest *Pattern
	for _, p := range d.patterns {
		if oldest == nil || p.LastSeen.Before(oldest.LastSeen) ||
			(p.LastSeen.Equal(oldest.LastSeen) && p.ID < oldest.ID) {
			oldest = p
		}
	}
	delete(d.patterns, oldest.ID)
}

// Patterns returns the patterns matching q, most frequent first, ties by ID.
func (d *Detector) Patterns(q Query) []Pattern {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Pattern
	for _, p := range d.patterns {
		if p.Confidence < q.MinConfidence || p.Frequency < q.MinFrequency {
			continue
		}
		if !q.Since.IsZero() && p.LastSeen.Before(q.Since) {
			continue
		}
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns a copy of the pattern with the given ID.
func (d *Detector) Get(id string) (Pattern, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.patterns[id]
	if !ok {
		return Pattern{}, false
	}
	return p.clone(), true
}

// Count returns the size of the pattern table.
func (d *Detector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.patterns)
}

// Window returns a copy of the events currently in the window, oldest first.
func (d *Detector) Window() []event.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Record, len(d.history))
	for i, ev := range d.history {
		out[i] = ev.Clone()
	}
	return out
}
