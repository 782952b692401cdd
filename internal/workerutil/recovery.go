// Package workerutil runs the server's background goroutines: job output
// readers, the #() cache sweeper and the automatic-rename ticker.
package workerutil

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	// defaultInitialBackoff is the delay before the first restart after a
	// panic. It doubles on each further attempt up to defaultMaxBackoff, so a
	// worker that panics on every tick never spins the CPU.
	defaultInitialBackoff = 100 * time.Millisecond

	// defaultMaxBackoff caps the delay between restarts. A job output reader
	// or the #() cache sweeper is back within 5s of a transient fault.
	defaultMaxBackoff = 5 * time.Second

	// defaultMaxRetries is the number of runs before a worker is given up.
	// With the backoff above, 10 runs cover roughly 30 seconds.
	defaultMaxRetries = 10
)

// RecoveryOptions configures RunWithPanicRecovery.
//
// Zero-value semantics for numeric fields:
//   - 0 (or a negative value) means "use the default": 100ms, 5s and 10 runs.
//   - MaxRetries of 1 runs fn once; a panic goes straight to OnFatal.
//   - There is no unlimited mode.
//
// Nil callbacks are skipped.
type RecoveryOptions struct {
	// InitialBackoff is the delay before the first restart.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubled delay. A value below InitialBackoff is
	// raised to it with a warning.
	MaxBackoff time.Duration

	// MaxRetries is the total number of runs, the first one included.
	MaxRetries int

	// OnPanic runs after each recovered panic and before the backoff wait.
	// attempt is 1-based.
	OnPanic func(worker string, attempt int)

	// OnFatal runs once when the worker stops for good after MaxRetries
	// panics.
	OnFatal func(worker string, maxRetries int)

	// IsShutdown reports that the server is exiting. When it returns true
	// after a panic the worker is not restarted and OnFatal is not called.
	IsShutdown func() bool
}

// withDefaults fills zero fields and clamps MaxBackoff to InitialBackoff.
func (opts RecoveryOptions) withDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		slog.Warn("[DEBUG-PANIC] max backoff below initial backoff, clamping",
			"initialBackoff", opts.InitialBackoff,
			"maxBackoff", opts.MaxBackoff,
		)
		opts.MaxBackoff = opts.InitialBackoff
	}
	return opts
}

// RunWithPanicRecovery starts fn on a goroutine tracked by wg. A panic is
// logged with its stack and fn is restarted after an exponential backoff,
// up to MaxRetries runs. A normal return or a cancelled ctx ends the worker.
func RunWithPanicRecovery(ctx context.Context, name string, wg *sync.WaitGroup, fn func(ctx context.Context), opts RecoveryOptions) {
	opts = opts.withDefaults()
	wg.Go(func() {
		superviseWorker(ctx, name, fn, opts)
	})
}

// runOnce reports whether fn panicked.
func runOnce(ctx context.Context, name string, fn func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-PANIC] worker panicked",
				"worker", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			panicked = true
		}
	}()
	fn(ctx)
	return false
}

func superviseWorker(ctx context.Context, name string, fn func(ctx context.Context), opts RecoveryOptions) {
	delay := opts.InitialBackoff
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if !runOnce(ctx, name, fn) || ctx.Err() != nil {
			return
		}
		if opts.IsShutdown != nil && opts.IsShutdown() {
			slog.Info("[DEBUG-PANIC] server exiting, worker not restarted", "worker", name)
			return
		}
		if opts.OnPanic != nil {
			opts.OnPanic(name, attempt)
		}
		if attempt == opts.MaxRetries {
			break
		}
		slog.Warn("[DEBUG-PANIC] restarting worker", "worker", name, "delay", delay, "attempt", attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = nextBackoff(delay, opts.MaxBackoff)
	}

	slog.Error("[DEBUG-PANIC] worker gave up", "worker", name, "maxRetries", opts.MaxRetries)
	if opts.OnFatal != nil {
		opts.OnFatal(name, opts.MaxRetries)
	}
}

// nextBackoff doubles current, capped at limit. Overflow yields limit.
func nextBackoff(current, limit time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	next := current * 2
	if next > limit || next < current {
		return limit
	}
	return next
}
