package horizon

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// maxTickSlack bounds how early a scheduled tick may land relative to the
// previous scan and still run.
const maxTickSlack = 500 * time.Millisecond

// Scheduler runs Scan on a fixed interval. A run that is still going when
// the next one is due causes that next run to be skipped.
type Scheduler struct {
	scanner  *Scanner
	interval time.Duration
	slack    time.Duration
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	skipped  atomic.Int64
}

// NewScheduler creates a Scheduler. The interval is rounded up to whole
// seconds, the resolution of the cron loop, with a minimum of one second.
func NewScheduler(s *Scanner, interval time.Duration) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	if rem := interval % time.Second; rem != 0 {
		interval += time.Second - rem
	}
	return &Scheduler{scanner: s, interval: interval, slack: min(interval/2, maxTickSlack)}
}

// Skipped returns how many ticks found the previous scan too recent.
func (sc *Scheduler) Skipped() int64 { return sc.skipped.Load() }

// Start registers the scan job and starts the cron loop. Scans run with a
// context derived from ctx.
func (sc *Scheduler) Start(ctx context.Context) error {
	sc.ctx, sc.cancel = context.WithCancel(ctx)
	sc.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := sc.cron.AddFunc(fmt.Sprintf("@every %s", sc.interval), sc.run); err != nil {
		sc.cancel()
		return fmt.Errorf("schedule scan: %w", err)
	}
	sc.cron.Start()
	log.Printf("scheduler: scanning every %s", sc.interval)
	return nil
}

// Stop halts the loop and waits up to the context's deadline for a running
// scan to finish.
func (sc *Scheduler) Stop(ctx context.Context) {
	if sc.cron == nil {
		return
	}
	done := sc.cron.Stop()
	defer sc.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Printf("scheduler: stop timed out waiting for a running scan")
	}
}

func (sc *Scheduler) run() {
	res := sc.scanner.scan(sc.ctx, sc.slack)
	if res.TooSoon {
		sc.skipped.Add(1)
		log.Printf("scheduler: scan skipped, next at %s", res.NextScan.Format(time.RFC3339))
	}
}
