//go:build !windows

package job

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestRunCollectsLines(t *testing.T) {
	r := NewRunner(Options{Shell: "/bin/sh"})
	done := make(chan struct{})
	var lines []string
	_, err := r.Run(Spec{
		Command: "printf 'one\\ntwo\\nthree'",
		OnComplete: func(j *Job) {
			for {
				line, ok := j.ReadLine()
				if !ok {
					break
				}
				lines = append(lines, line)
			}
			lines = append(lines, j.Remaining())
			close(done)
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	waitFor(t, done, "completion")

	if got := strings.Join(lines, "|"); got != "one|two|three" {
		t.Fatalf("lines = %q, want %q", got, "one|two|three")
	}
}

func TestRunMergesStderr(t *testing.T) {
	r := NewRunner(Options{Shell: "/bin/sh"})
	done := make(chan struct{})
	var out string
	_, err := r.Run(Spec{
		Command: "echo oops 1>&2",
		OnComplete: func(j *Job) {
			out = j.Remaining()
			close(done)
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	waitFor(t, done, "completion")
	if strings.TrimSpace(out) != "oops" {
		t.Fatalf("output = %q, want oops", out)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	r := NewRunner(Options{Shell: "/bin/sh"})
	if _, err := r.Run(Spec{Command: "  "}); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("Run() error = %v, want ErrEmptyCommand", err)
	}
}

func TestRunUpdateFiresBeforeComplete(t *testing.T) {
	r := NewRunner(Options{Shell: "/bin/sh", CoalesceInterval: 5 * time.Millisecond})
	var mu sync.Mutex
	var events []string
	done := make(chan struct{})
	_, err := r.Run(Spec{
		Command: "echo first",
		OnUpdate: func(*Job) {
			mu.Lock()
			events = append(events, "update")
			mu.Unlock()
		},
		OnComplete: func(*Job) {
			mu.Lock()
			events = append(events, "complete")
			mu.Unlock()
			close(done)
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	waitFor(t, done, "completion")

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 2 || events[0] != "update" || events[len(events)-1] != "complete" {
		t.Fatalf("events = %v, want update... then complete", events)
	}
}

func TestKillSuppressesCallbacks(t *testing.T) {
	r := NewRunner(Options{Shell: "/bin/sh"})
	called := make(chan struct{}, 1)
	j, err := r.Run(Spec{
		Command:    "sleep 30",
		OnComplete: func(*Job) { called <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	j.Kill()
	j.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case <-called:
		t.Fatal("OnComplete fired after Kill")
	default:
	}
	if !j.Done() {
		t.Fatal("job should be done after Shutdown")
	}
	if r.Running() != 0 {
		t.Fatalf("Running() = %d, want 0", r.Running())
	}
}

func TestShutdownKillsRunningJobs(t *testing.T) {
	r := NewRunner(Options{Shell: "/bin/sh"})
	for range 3 {
		if _, err := r.Run(Spec{Command: "sleep 30 | cat"}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if r.Running() != 0 {
		t.Fatalf("Running() = %d, want 0", r.Running())
	}
}
