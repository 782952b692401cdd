package job

import (
	"testing"
	"time"
)

func TestCoalescerFlushesOnSizeThreshold(t *testing.T) {
	ch := make(chan []byte, 2)
	c := newOutputCoalescer(time.Hour, 5, func(b []byte) {
		ch <- b
	})
	c.start()
	defer c.stop()

	c.write([]byte("abc"))
	c.write([]byte("de"))

	select {
	case got := <-ch:
		if string(got) != "abcde" {
			t.Fatalf("flush = %q, want %q", got, "abcde")
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected flush on size threshold")
	}
}

func TestCoalescerStopEmitsPending(t *testing.T) {
	ch := make(chan []byte, 2)
	c := newOutputCoalescer(time.Hour, 1024, func(b []byte) {
		ch <- b
	})
	c.start()
	c.write([]byte("pending"))
	c.stop()

	select {
	case got := <-ch:
		if string(got) != "pending" {
			t.Fatalf("flush = %q, want %q", got, "pending")
		}
	default:
		t.Fatal("stop should emit pending data before returning")
	}

	c.write([]byte("late"))
	c.stop()
	select {
	case got := <-ch:
		t.Fatalf("unexpected emit after stop: %q", got)
	default:
	}
}

func TestCoalescerTickFlushes(t *testing.T) {
	ch := make(chan []byte, 2)
	c := newOutputCoalescer(10*time.Millisecond, 1024, func(b []byte) {
		ch <- b
	})
	c.start()
	defer c.stop()
	c.write([]byte("tick"))

	select {
	case got := <-ch:
		if string(got) != "tick" {
			t.Fatalf("flush = %q, want %q", got, "tick")
		}
	case <-time.After(time.Second):
		t.Fatal("expected ticker flush")
	}
}
