package sessionlog

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultMessageLimit is the message log size when none is configured.
const DefaultMessageLimit = 1000

// Message is one entry of the server message log.
type Message struct {
	Time   time.Time
	Level  slog.Level
	Text   string
	Source string
}

// Messages is the bounded server message log shown by show-messages.
type Messages struct {
	mu      sync.Mutex
	entries []Message
	limit   int
}

// NewMessages returns a log holding at most limit entries.
func NewMessages(limit int) *Messages {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	return &Messages{limit: limit}
}

// Add implements Sink. The oldest entries beyond the limit are dropped.
func (m *Messages) Add(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, msg)
	m.trimLocked()
}

// AddText records a message at info level, stamped now.
func (m *Messages) AddText(text string) {
	m.Add(Message{Time: time.Now(), Level: slog.LevelInfo, Text: text})
}

// SetLimit changes the bound (message-limit) and trims immediately.
func (m *Messages) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = limit
	m.trimLocked()
}

// REQUIRES: m.mu must be held by the caller.
func (m *Messages) trimLocked() {
	if over := len(m.entries) - m.limit; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
}

// Snapshot returns a copy of the log, oldest first.
func (m *Messages) Snapshot() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.entries...)
}
