package job

import (
	"bytes"
	"sync"
	"time"
)

const (
	// defaultCoalesceInterval batches output chunks into one OnUpdate call
	// per frame (~60Hz). A chatty #() command then costs one cache update and
	// one status redraw request per frame instead of one per read.
	defaultCoalesceInterval = 16 * time.Millisecond

	// defaultCoalesceMaxBytes flushes a batch early once it grows this large,
	// so a burst of output is not held back for the full interval.
	defaultCoalesceMaxBytes = 8 * 1024
)

var coalesceBufferPool = sync.Pool{
	New: func() any {
		return &bytes.Buffer{}
	},
}

// outputCoalescer batches raw job output so a chatty command triggers one
// update callback per interval instead of one per read.
//
// Lock ordering: flushMu -> mu. emit runs with flushMu held, which keeps
// batches in write order even when a tick flush races with Stop.
type outputCoalescer struct {
	flushMu sync.Mutex

	mu           sync.Mutex
	buf          *bytes.Buffer
	maxBytes     int
	interval     time.Duration
	maxAge       time.Duration
	lastWriteAt  time.Time
	pendingSince time.Time
	stopped      bool

	emit   func([]byte)
	stopCh chan struct{}
	once   sync.Once
}

func newOutputCoalescer(interval time.Duration, maxBytes int, emit func([]byte)) *outputCoalescer {
	if interval <= 0 {
		interval = defaultCoalesceInterval
	}
	if maxBytes <= 0 {
		maxBytes = defaultCoalesceMaxBytes
	}
	maxAge := max(interval*4, 64*time.Millisecond)
	buf := coalesceBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return &outputCoalescer{
		buf:      buf,
		maxBytes: maxBytes,
		interval: interval,
		maxAge:   maxAge,
		emit:     emit,
		stopCh:   make(chan struct{}),
	}
}

// start runs the tick loop until stop is called.
func (o *outputCoalescer) start() {
	ticker := time.NewTicker(o.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-o.stopCh:
				return
			case <-ticker.C:
				o.flush(false)
			}
		}
	}()
}

func (o *outputCoalescer) write(data []byte) {
	if len(data) == 0 {
		return
	}
	now := time.Now()
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	if o.buf.Len() == 0 {
		o.pendingSince = now
	}
	o.lastWriteAt = now
	o.buf.Write(data)
	full := o.buf.Len() >= o.maxBytes
	o.mu.Unlock()
	if full {
		o.flush(true)
	}
}

func (o *outputCoalescer) flush(force bool) {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	now := time.Now()
	o.mu.Lock()
	if o.stopped || o.buf.Len() == 0 {
		o.mu.Unlock()
		return
	}
	if !force {
		quiet := now.Sub(o.lastWriteAt)
		pending := now.Sub(o.pendingSince)
		if o.buf.Len() < o.maxBytes && quiet < o.interval && pending < o.maxAge {
			o.mu.Unlock()
			return
		}
	}
	raw := bytes.Clone(o.buf.Bytes())
	o.buf.Reset()
	o.pendingSince = time.Time{}
	o.mu.Unlock()

	o.emit(raw)
}

// stop ends the tick loop and emits whatever is still pending. It returns
// after the final emit so callers can rely on all output being delivered.
func (o *outputCoalescer) stop() {
	o.once.Do(func() {
		close(o.stopCh)
	})

	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	pending := bytes.Clone(o.buf.Bytes())
	buf := o.buf
	o.buf = nil
	o.mu.Unlock()

	if len(pending) > 0 {
		o.emit(pending)
	}
	buf.Reset()
	coalesceBufferPool.Put(buf)
}
