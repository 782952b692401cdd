// Package logging installs the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"go-tmux/internal/sessionlog"
)

// FileName is the log file created inside Config.Dir.
const FileName = "go-tmux.log"

// Config holds logging configuration.
type Config struct {
	// Dir is the directory for the rotating log file; empty logs to Stderr.
	Dir string

	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "text" (default) or "json".
	Format string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Sink receives Warn and above, usually the server message log.
	Sink sessionlog.Sink

	// Stderr overrides os.Stderr when Dir is empty.
	Stderr io.Writer
}

// Logger is the installed logger plus the pieces a reload can change.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	file  *lumberjack.Logger
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Setup builds the logger described by cfg and makes it the slog default.
func Setup(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	l := &Logger{level: levelVar}
	var out io.Writer
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, FileName),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = l.file
	} else if cfg.Stderr != nil {
		out = cfg.Stderr
	} else {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: levelVar}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	if cfg.Sink != nil {
		handler = sessionlog.NewTeeHandler(handler, slog.LevelWarn, cfg.Sink)
	}

	l.Logger = slog.New(handler)
	slog.SetDefault(l.Logger)
	return l, nil
}

// SetLevel changes the minimum level of the installed handler.
func (l *Logger) SetLevel(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	if l.level.Level() != level {
		slog.Info("[DEBUG-CONFIG] log level changed", "from", l.level.Level().String(), "to", level.String())
		l.level.Set(level)
	}
	return nil
}

// Path returns the log file path, or "" when logging to stderr.
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Filename
}

// Close flushes and closes the rotating file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
