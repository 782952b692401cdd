package workerutil

import (
	"context"
	"sync"
	"time"
)

// RunTicker calls fn every interval until ctx is cancelled. A panic in fn
// restarts the ticker with the usual backoff. A non-positive interval does
// nothing.
func RunTicker(ctx context.Context, name string, wg *sync.WaitGroup, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	RunWithPanicRecovery(ctx, name, wg, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}, RecoveryOptions{})
}
