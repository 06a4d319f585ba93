package pattern

import (
	"fmt"

	"github.com/lazypower/horizon/internal/event"
)

// State is a serializable copy of a Detector's window and pattern table.
type State struct {
	Window   []event.Record `json:"window"`
	Patterns []Pattern      `json:"patterns"`
}

// Snapshot returns the detector's state.
func (d *Detector) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := State{
		Window:   make([]event.Record, len(d.history)),
		Patterns: make([]Pattern, 0, len(d.patterns)),
	}
	for i, ev := range d.history {
		st.Window[i] = ev.Clone()
	}
	for _, p := range d.patterns {
		st.Patterns = append(st.Patterns, p.clone())
	}
	return st
}

// Validate checks the pattern invariants of a state without applying it.
func (st State) Validate() error {
	seen := make(map[string]bool, len(st.Patterns))
	for _, p := range st.Patterns {
		if p.ID == "" {
			return fmt.Errorf("pattern with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate pattern %s", p.ID)
		}
		seen[p.ID] = true
		if p.Confidence < 0 || p.Confidence > 1 || p.LastConfidence < 0 || p.LastConfidence > 1 {
			return fmt.Errorf("pattern %s: confidence outside [0,1]", p.ID)
		}
		if p.Frequency < 1 {
			return fmt.Errorf("pattern %s: frequency %d < 1", p.ID, p.Frequency)
		}
		if p.LastSeen.Before(p.FirstSeen) {
			return fmt.Errorf("pattern %s: last_seen before first_seen", p.ID)
		}
		if len(p.Signature) == 0 {
			return fmt.Errorf("pattern %s: empty signature", p.ID)
		}
	}
	for i, ev := range st.Window {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("window event %d: %w", i, err)
		}
	}
	return nil
}

// Restore replaces the detector's state. Invalid states are rejected whole.
// A window larger than the detector's capacity keeps its newest events.
func (d *Detector) Restore(st State) error {
	if err := st.Validate(); err != nil {
		return err
	}

	window := st.Window
	if over := len(window) - d.Capacity(); over > 0 {
		window = window[over:]
	}
	history := make([]event.Record, len(window), d.Capacity())
	for i, ev := range window {
		history[i] = ev.Clone()
	}
	patterns := make(map[string]*Pattern, len(st.Patterns))
	for _, p := range st.Patterns {
		cp := p.clone()
		patterns[cp.ID] = &cp
	}

	d.mu.Lock()
	d.history = history
	d.patterns = patterns
	d.mu.Unlock()
	return nil
}
