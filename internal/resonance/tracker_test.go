package resonance

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/lazypower/horizon/internal/event"
)

// fakeClock is a settable clock for decay tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testTracker(t *testing.T, rate float64) (*Tracker, *fakeClock) {
	t.Helper()
	tr, err := NewTracker(rate)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	clk := &fakeClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	tr.SetClock(clk.Now)
	return tr, clk
}

func ev(tag string, resonance float64) event.Record {
	return event.New("src", "content", tag, resonance, time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
}

func TestNewTrackerRejectsRate(t *testing.T) {
	for _, rate := range []float64{0, 1, -0.5, 1.5, math.NaN()} {
		if _, err := NewTracker(rate); err == nil {
			t.Errorf("rate %v accepted", rate)
		}
	}
}

func TestDecayOverTwoHours(t *testing.T) {
	tr, clk := testTracker(t, 0.95)
	tr.Update(ev("alpha", 1.0))

	clk.Advance(2 * time.Hour)
	got := tr.CurrentScores()["alpha"]
	if math.Abs(got-0.9025) > 0.01 {
		t.Errorf("alpha after 2h = %v, want ~0.9025", got)
	}
}

func TestReadsStrictlyDecrease(t *testing.T) {
	tr, clk := testTracker(t, 0.95)
	tr.Update(ev("alpha", 0.6))

	first := tr.CurrentScores()["alpha"]
	clk.Advance(30 * time.Minute)
	second := tr.CurrentScores()["alpha"]

	if !(second < first) {
		t.Fatalf("score did not decrease: %v -> %v", first, second)
	}
	want := first * math.Pow(0.95, 0.5)
	if math.Abs(second-want) > 1e-12 {
		t.Errorf("second = %v, want %v (exact decay factor)", second, want)
	}
}

func TestRepeatedReadsDoNotCompound(t *testing.T) {
	tr, clk := testTracker(t, 0.5)
	tr.Update(ev("alpha", 1.0))

	for i := 0; i < 4; i++ {
		clk.Advance(15 * time.Minute)
		tr.CurrentScores()
	}
	got := tr.CurrentScores()["alpha"]
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("after 1h at rate 0.5 = %v, want 0.5", got)
	}
}

func TestEvictionAfterRetention(t *testing.T) {
	tr, clk := testTracker(t, 0.95)
	tr.Update(ev("alpha", 1.0))
	clk.Advance(12 * time.Hour)
	tr.Update(ev("beta", 0.5))

	clk.Advance(12*time.Hour + time.Second)
	scores := tr.CurrentScores()
	if _, ok := scores["alpha"]; ok {
		t.Error("alpha should have been evicted after 24h")
	}
	if scores["beta"] <= 0 {
		t.Errorf("beta = %v, want > 0", scores["beta"])
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestScoresSumPerTag(t *testing.T) {
	tr, _ := testTracker(t, 0.95)
	tr.Update(ev("alpha", 0.3))
	tr.Update(ev("alpha", 0.4))
	tr.Update(ev("beta", 0.2))

	scores := tr.CurrentScores()
	if math.Abs(scores["alpha"]-0.7) > 1e-12 {
		t.Errorf("alpha = %v, want 0.7", scores["alpha"])
	}
	if math.Abs(scores["beta"]-0.2) > 1e-12 {
		t.Errorf("beta = %v, want 0.2", scores["beta"])
	}
}

func TestNegativeScoreClampedToZero(t *testing.T) {
	tr, _ := testTracker(t, 0.95)
	bad := ev("alpha", 0.5)
	bad.Resonance = -3
	tr.Update(bad)

	if s := tr.CurrentScores()["alpha"]; s != 0 {
		t.Errorf("alpha = %v, want 0", s)
	}
}

func TestDominantTag(t *testing.T) {
	tr, _ := testTracker(t, 0.95)

	if _, ok := tr.DominantTag(0); ok {
		t.Error("empty tracker reported a dominant tag")
	}

	tr.Update(ev("alpha", 0.3))
	tr.Update(ev("beta", 0.8))

	tag, ok := tr.DominantTag(0.5)
	if !ok || tag != "beta" {
		t.Errorf("DominantTag(0.5) = %q, %v; want beta, true", tag, ok)
	}
	if _, ok := tr.DominantTag(0.9); ok {
		t.Error("DominantTag(0.9) should be none")
	}
}

func TestSnapshotRestore(t *testing.T) {
	tr, clk := testTracker(t, 0.95)
	tr.Update(ev("alpha", 1.0))
	clk.Advance(time.Hour)
	tr.Update(ev("beta", 0.5))

	snap := tr.Snapshot()
	tr2, clk2 := testTracker(t, 0.95)
	clk2.t = clk.t
	if err := tr2.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	a, b := tr.CurrentScores(), tr2.CurrentScores()
	for tag, s := range a {
		if math.Abs(b[tag]-s) > 1e-12 {
			t.Errorf("%s: restored %v, want %v", tag, b[tag], s)
		}
	}

	if err := tr2.Restore([]Entry{{At: clk.t, Tag: "x", Score: -1}}); err == nil {
		t.Error("Restore accepted a negative score")
	}
	if tr2.Len() != 2 {
		t.Errorf("failed Restore changed state: Len = %d", tr2.Len())
	}
}

func TestDecayProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("scores strictly decrease between reads without new events", prop.ForAll(
		func(score float64, minutes int) bool {
			tr, err := NewTracker(0.95)
			if err != nil {
				return false
			}
			clk := &fakeClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
			tr.SetClock(clk.Now)
			tr.Update(ev("t", score))

			before := tr.CurrentScores()["t"]
			clk.Advance(time.Duration(minutes) * time.Minute)
			after := tr.CurrentScores()["t"]
			return after < before && after >= 0
		},
		gen.Float64Range(0.01, 1),
		gen.IntRange(1, 600),
	))

	properties.TestingRun(t)
}
