package horizon

import (
	"context"
	"testing"
	"time"

	"github.com/lazypower/horizon/internal/config"
)

func TestNewSchedulerMinimumInterval(t *testing.T) {
	s, _ := testScanner(t, nil)
	if sc := NewScheduler(s, 0); sc.interval != time.Second {
		t.Errorf("interval = %s, want 1s", sc.interval)
	}
	if sc := NewScheduler(s, 45*time.Second); sc.interval != 45*time.Second {
		t.Errorf("interval = %s, want 45s", sc.interval)
	}
	if sc := NewScheduler(s, 30500*time.Millisecond); sc.interval != 31*time.Second {
		t.Errorf("interval = %s, want 31s", sc.interval)
	}
}

func TestSchedulerRunsScans(t *testing.T) {
	s, _ := testScanner(t, func(c *config.EngineConfig) { c.ScanIntervalSeconds = 1 })
	s.SetClock(time.Now)

	sc := NewScheduler(s, s.Config().ScanInterval())
	if err := sc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(6 * time.Second)
	for len(s.Reports()) < 3 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sc.Stop(stopCtx)

	if n := len(s.Reports()); n < 3 {
		t.Fatalf("scheduler produced %d reports within 6s, want at least 3", n)
	}
	if n := sc.Skipped(); n != 0 {
		t.Errorf("skipped %d ticks with scheduler and scan intervals equal", n)
	}
}

func TestScheduledScanToleratesEarlyTick(t *testing.T) {
	s, clk := testScanner(t, func(c *config.EngineConfig) { c.ScanIntervalSeconds = 30 })
	sc := NewScheduler(s, s.Config().ScanInterval())
	ctx := context.Background()

	if s.scan(ctx, sc.slack).TooSoon {
		t.Fatal("first scheduled scan skipped")
	}
	clk.Advance(30*time.Second - 200*time.Millisecond)
	if !s.Scan(ctx).TooSoon {
		t.Error("direct Scan ran before the interval elapsed")
	}
	if s.scan(ctx, sc.slack).TooSoon {
		t.Error("scheduled scan 200ms early was skipped")
	}
	clk.Advance(29 * time.Second)
	if !s.scan(ctx, sc.slack).TooSoon {
		t.Error("scheduled scan a second early was not skipped")
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	s, _ := testScanner(t, nil)
	NewScheduler(s, time.Second).Stop(context.Background())
}
