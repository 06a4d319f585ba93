// Package resonance keeps time-decayed per-tag scores.
//
// Decay contract: every read and every write runs the same pass. Entries
// older than Retention are evicted and each retained entry contributes
//
//	score × rate^(hours elapsed between its insertion and now)
//
// so two reads Δ apart with no new events differ by exactly rate^(Δ/1h).
// Decay is computed from the stored original score, never compounded.
package resonance

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/horizon/internal/event"
)

// Retention is how long an entry contributes before it is evicted.
const Retention = 24 * time.Hour

// Entry is one scored observation.
type Entry struct {
	At    time.Time `json:"at"`
	Tag   string    `json:"tag"`
	Score float64   `json:"score"`
}

// Tracker accumulates decaying scores per tag. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	rate    float64
	now     func() time.Time
	entries []Entry
}

// NewTracker creates a Tracker. decayRate must lie in (0,1).
func NewTracker(decayRate float64) (*Tracker, error) {
	if !(decayRate > 0 && decayRate < 1) {
		return nil, fmt.Errorf("decay rate must be in (0,1), got %v", decayRate)
	}
	return &Tracker{rate: decayRate, now: time.Now}, nil
}

// SetClock replaces the wall clock, mainly for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// DecayRate returns the configured hourly decay factor.
func (t *Tracker) DecayRate() float64 { return t.rate }

// Update records ev's resonance under its tag at the current time, then
// runs the eviction pass.
func (t *Tracker) Update(ev event.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	score := ev.Resonance
	if math.IsNaN(score) || score < 0 {
		score = 0
	}
	t.entries = append(t.entries, Entry{At: now, Tag: ev.Tag, Score: score})
	t.evictLocked(now)
}

// CurrentScores returns the decayed sum per tag as of now.
func (t *Tracker) CurrentScores() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.evictLocked(now)

	scores := make(map[string]float64)
	for _, e := range t.entries {
		scores[e.Tag] += t.decayed(e, now)
	}
	return scores
}

// DominantTag returns the tag with the highest current score when that score
// reaches threshold. Ties resolve to the lexically smallest tag.
func (t *Tracker) DominantTag(threshold float64) (string, bool) {
	scores := t.CurrentScores()

	best, bestScore := "", -1.0
	for tag, s := range scores {
		if s > bestScore || (s == bestScore && tag < best) {
			best, bestScore = tag, s
		}
	}
	if best == "" || bestScore < threshold {
		return "", false
	}
	return best, true
}

// Samples returns the undecayed scores of the retained entries, oldest first.
func (t *Tracker) Samples() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictLocked(t.now())
	out := make([]float64, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Score
	}
	return out
}

// Len returns the number of retained entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(t.now())
	return len(t.entries)
}

func (t *Tracker) decayed(e Entry, now time.Time) float64 {
	elapsed := now.Sub(e.At)
	if elapsed <= 0 {
		return e.Score
	}
	return e.Score * math.Pow(t.rate, elapsed.Hours())
}

func (t *Tracker) evictLocked(now time.Time) {
	keep := t.entries[:0]
	for _, e := range t.entries {
		if now.Sub(e.At) <= Retention {
			keep = append(keep, e)
		}
	}
	clear(t.entries[len(keep):])
	t.entries = keep
}

// Snapshot returns the retained entries, oldest first.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(t.now())
	return append([]Entry(nil), t.entries...)
}

// ValidateEntries checks a history without applying it.
func ValidateEntries(entries []Entry) error {
	for i, e := range entries {
		if math.IsNaN(e.Score) || e.Score < 0 {
			return fmt.Errorf("entry %d: invalid score %v", i, e.Score)
		}
		if e.At.IsZero() {
			return fmt.Errorf("entry %d: missing time", i)
		}
	}
	return nil
}

// Restore replaces the history. One invalid entry rejects the whole set.
func (t *Tracker) Restore(entries []Entry) error {
	if err := ValidateEntries(entries); err != nil {
		return err
	}
	restored := append([]Entry(nil), entries...)
	sort.SliceStable(restored, func(i, j int) bool { return restored[i].At.Before(restored[j].At) })

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = restored
	t.evictLocked(t.now())
	return nil
}
