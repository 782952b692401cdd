package workerutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fastOptions(retries int) RecoveryOptions {
	return RecoveryOptions{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		MaxRetries:     retries,
	}
}

func TestRunWithPanicRecoveryNormalExit(t *testing.T) {
	var wg sync.WaitGroup
	var calls atomic.Int32
	opts := fastOptions(3)
	opts.OnPanic = func(string, int) { t.Error("OnPanic called for a clean exit") }

	RunWithPanicRecovery(context.Background(), "clean", &wg, func(context.Context) {
		calls.Add(1)
	}, opts)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fn ran %d times, want 1", got)
	}
}

func TestRunWithPanicRecoveryRestartsAfterPanic(t *testing.T) {
	var wg sync.WaitGroup
	var calls atomic.Int32
	var attempts []int
	var mu sync.Mutex
	opts := fastOptions(5)
	opts.OnPanic = func(_ string, attempt int) {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
	}
	opts.OnFatal = func(string, int) { t.Error("OnFatal called after recovery") }

	RunWithPanicRecovery(context.Background(), "flaky", &wg, func(context.Context) {
		if calls.Add(1) < 3 {
			panic("boom")
		}
	}, opts)
	wg.Wait()

	if got := calls.Load(); got != 3 {
		t.Fatalf("fn ran %d times, want 3", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("OnPanic attempts = %v, want [1 2]", attempts)
	}
}

func TestRunWithPanicRecoveryGivesUp(t *testing.T) {
	var wg sync.WaitGroup
	var calls, fatal atomic.Int32
	opts := fastOptions(3)
	opts.OnFatal = func(_ string, n int) {
		if n != 3 {
			t.Errorf("OnFatal maxRetries = %d, want 3", n)
		}
		fatal.Add(1)
	}

	RunWithPanicRecovery(context.Background(), "broken", &wg, func(context.Context) {
		calls.Add(1)
		panic("always")
	}, opts)
	wg.Wait()

	if calls.Load() != 3 || fatal.Load() != 1 {
		t.Fatalf("calls = %d, fatal = %d, want 3 and 1", calls.Load(), fatal.Load())
	}
}

func TestRunWithPanicRecoveryStopsOnShutdown(t *testing.T) {
	var wg sync.WaitGroup
	var calls atomic.Int32
	opts := fastOptions(5)
	opts.IsShutdown = func() bool { return true }

	RunWithPanicRecovery(context.Background(), "exiting", &wg, func(context.Context) {
		calls.Add(1)
		panic("during shutdown")
	}, opts)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fn ran %d times during shutdown, want 1", got)
	}
}

func TestRunWithPanicRecoveryCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var calls atomic.Int32
	opts := RecoveryOptions{InitialBackoff: time.Hour, MaxBackoff: time.Hour, MaxRetries: 5}
	opts.OnPanic = func(string, int) { cancel() }

	RunWithPanicRecovery(ctx, "cancelled", &wg, func(context.Context) {
		calls.Add(1)
		panic("once")
	}, opts)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fn ran %d times, want 1", got)
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		current, limit, want time.Duration
	}{
		{0, time.Second, defaultInitialBackoff},
		{100 * time.Millisecond, time.Second, 200 * time.Millisecond},
		{800 * time.Millisecond, time.Second, time.Second},
		{time.Second, time.Second, time.Second},
		{time.Duration(1 << 62), time.Duration(1<<63 - 1), time.Duration(1<<63 - 1)},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.current, tt.limit); got != tt.want {
			t.Errorf("nextBackoff(%v, %v) = %v, want %v", tt.current, tt.limit, got, tt.want)
		}
	}
}

func TestWithDefaultsClampsMaxBackoff(t *testing.T) {
	opts := RecoveryOptions{InitialBackoff: time.Second, MaxBackoff: time.Millisecond}.withDefaults()
	if opts.MaxBackoff != time.Second {
		t.Fatalf("MaxBackoff = %v, want 1s", opts.MaxBackoff)
	}
	if opts.MaxRetries != defaultMaxRetries {
		t.Fatalf("MaxRetries = %d, want %d", opts.MaxRetries, defaultMaxRetries)
	}
}

func TestRunTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var ticks atomic.Int32
	done := make(chan struct{})

	RunTicker(ctx, "tick", &wg, time.Millisecond, func(context.Context) {
		if ticks.Add(1) == 3 {
			close(done)
		}
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ticker did not fire three times")
	}
	cancel()
	wg.Wait()
}

func TestRunTickerIgnoresZeroInterval(t *testing.T) {
	var wg sync.WaitGroup
	RunTicker(context.Background(), "never", &wg, 0, func(context.Context) {
		t.Error("fn called for a zero interval")
	})
	wg.Wait()
}
