package store

import (
	"context"
	"log"
	"time"
)

// StartRetention prunes consumed events older than keep once now and then
// every interval until ctx is done.
func (db *DB) StartRetention(ctx context.Context, keep, interval time.Duration) {
	db.pruneOnce(ctx, keep)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				db.pruneOnce(ctx, keep)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (db *DB) pruneOnce(ctx context.Context, keep time.Duration) {
	if n, err := db.PruneEvents(ctx, time.Now().Add(-keep)); err != nil {
		log.Printf("store: retention: %v", err)
	} else if n > 0 {
		log.Printf("store: retention pruned %d events", n)
	}
}
