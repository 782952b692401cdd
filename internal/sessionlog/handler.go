// Package sessionlog feeds warnings and errors from the process logger into
// the server message log that show-messages prints.
package sessionlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
)

// Sink receives records teed off the logger.
type Sink interface {
	Add(msg Message)
}

// TeeHandler forwards every record to base and copies those at or above
// minLevel into sink. The record's attributes are appended to the copied
// text as key=value pairs.
type TeeHandler struct {
	base     slog.Handler
	sink     Sink
	minLevel slog.Level
	group    string // dot-separated slog group, reported as Message.Source
}

// NewTeeHandler wraps base. A nil sink disables teeing.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, sink Sink) *TeeHandler {
	return &TeeHandler{
		base:     base,
		sink:     sink,
		minLevel: minLevel,
	}
}

// Enabled defers to the base handler; minLevel only gates the sink.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards the record and then feeds the sink. The sink sees the
// record even when the base handler fails.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if h.sink != nil && record.Level >= h.minLevel {
		h.deliver(Message{
			Time:   record.Time,
			Level:  record.Level,
			Text:   messageText(record),
			Source: h.group,
		})
	}
	return err
}

func (h *TeeHandler) deliver(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			// stderr, not slog: logging here would re-enter this handler.
			fmt.Fprintf(os.Stderr, "[session-log] sink panicked: %v\n%s\n", r, debug.Stack())
		}
	}()
	h.sink.Add(msg)
}

func messageText(record slog.Record) string {
	if record.NumAttrs() == 0 {
		return record.Message
	}
	var b strings.Builder
	b.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.Resolve().String())
		return true
	})
	return b.String()
}

// WithAttrs applies attrs to the base handler only.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &TeeHandler{
		base:     h.base.WithAttrs(attrs),
		sink:     h.sink,
		minLevel: h.minLevel,
		group:    h.group,
	}
}

// WithGroup nests the base handler and extends Source.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &TeeHandler{
		base:     h.base.WithGroup(name),
		sink:     h.sink,
		minLevel: h.minLevel,
		group:    group,
	}
}
