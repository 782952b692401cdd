// Package testutil holds helpers shared by go-tmux tests.
package testutil

import (
	"testing"
	"time"
)

// WaitFor polls cond every 5ms until it returns true, failing the test after
// timeout. what names the awaited condition in the failure message.
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %s waiting for %s", timeout, what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
