package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNewDefaults(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New("sensor-a", "hello", "", 0.4, ts)

	if r.Tag != DefaultTag {
		t.Errorf("Tag = %q, want %q", r.Tag, DefaultTag)
	}
	if r.ID == "" {
		t.Fatal("ID is empty")
	}
	if r.ID != DeriveID("sensor-a", "hello", ts) {
		t.Errorf("ID %s does not match DeriveID", r.ID)
	}
}

func TestDeriveIDIgnoresLocation(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)
	local := ts.In(time.FixedZone("X", 5*3600))

	if DeriveID("a", "b", ts) != DeriveID("a", "b", local) {
		t.Error("ID changed with time zone")
	}
	if DeriveID("a", "b", ts) == DeriveID("a", "b", ts.Add(time.Nanosecond)) {
		t.Error("distinct timestamps produced the same ID")
	}
	if DeriveID("ab", "", ts) == DeriveID("a", "b", ts) {
		t.Error("field boundary not part of the ID")
	}
}

func TestIDStableAcrossJSON(t *testing.T) {
	r := New("sensor-a", "hello", "alpha", 0.5, time.Now())

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.WithID().ID != r.ID {
		t.Errorf("re-derived ID %s != original %s", back.WithID().ID, r.ID)
	}
	if err := back.Validate(); err != nil {
		t.Errorf("Validate after round trip: %v", err)
	}
}

func TestValidate(t *testing.T) {
	ts := time.Now()
	good := New("s", "c", "t", 0.5, ts)

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"missing source", func(r *Record) { r.Source = "" }},
		{"missing content", func(r *Record) { r.Content = "" }},
		{"missing timestamp", func(r *Record) { r.Timestamp = time.Time{} }},
		{"resonance above", func(r *Record) { r.Resonance = 1.1 }},
		{"resonance below", func(r *Record) { r.Resonance = -0.1 }},
		{"tampered id", func(r *Record) { r.ID = "not-the-id" }},
	}

	if err := good.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	for _, tt := range tests {
		r := good
		tt.mutate(&r)
		if err := r.Validate(); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: err = %v, want ErrMalformed", tt.name, err)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := New("s", "c", "t", 0.5, time.Now())
	r.Metadata = map[string]string{"phase": "still"}
	r.Related = []string{"x"}

	c := r.Clone()
	c.Metadata["phase"] = "moving"
	c.Related[0] = "y"

	if r.Metadata["phase"] != "still" || r.Related[0] != "x" {
		t.Error("Clone shares maps or slices with the original")
	}
}

func TestDuplicate(t *testing.T) {
	ts := time.Now()
	a := New("s", "c", "alpha", 0.1, ts)
	b := New("s", "c", "beta", 0.9, ts)
	if !Duplicate(a, b) {
		t.Error("same source/content/timestamp should be duplicates")
	}
	if Duplicate(a, New("s", "c", "alpha", 0.1, ts.Add(time.Second))) {
		t.Error("different timestamps should not be duplicates")
	}
}

func TestIDDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical (source, content, timestamp) yield identical ids", prop.ForAll(
		func(source, content string, nanos int64) bool {
			ts := time.Unix(0, nanos)
			e1 := New(source, content, "x", 0.1, ts)
			e2 := New(source, content, "y", 0.9, time.Unix(0, nanos).UTC())
			return e1.ID == e2.ID
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.Int64Range(0, 1<<62),
	))

	properties.TestingRun(t)
}
