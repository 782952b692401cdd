// Package config loads, validates and saves the go-tmux YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"go-tmux/internal/options"
)

const (
	// maxConfigFileBytes rejects files that cannot be a hand-written config
	// before they are read into memory.
	maxConfigFileBytes int64 = 1 << 20 // 1MB

	// maxRenameRetry and renameRetryBaseDelay bound the atomic Save rename.
	// The delay grows linearly (10ms, 20ms, ...), about half a second in all,
	// which covers an editor or backup tool briefly holding the file.
	maxRenameRetry       = 10
	renameRetryBaseDelay = 10 * time.Millisecond

	// maxTerminalSize bounds default_size in both dimensions.
	maxTerminalSize = 10000
)

var userHomeDirFn = os.UserHomeDir

var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Bare integers are seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Size is a terminal size in cells.
type Size struct {
	Cols int `yaml:"cols" json:"cols"`
	Rows int `yaml:"rows" json:"rows"`
}

// JobsConfig tunes the #() job runner and cache.
type JobsConfig struct {
	// UsePTY runs #() commands on a pseudo-terminal instead of pipes.
	UsePTY       bool     `yaml:"use_pty" json:"use_pty"`
	TidyInterval Duration `yaml:"tidy_interval" json:"tidy_interval"`
	MaxIdle      Duration `yaml:"max_idle" json:"max_idle"`
}

// StatusConfig configures the status-line hub.
type StatusConfig struct {
	// ListenAddr is the WebSocket listen address; empty disables the hub.
	ListenAddr     string   `yaml:"listen_addr" json:"listen_addr"`
	RedrawInterval Duration `yaml:"redraw_interval" json:"redraw_interval"`
	RedrawBurst    int      `yaml:"redraw_burst" json:"redraw_burst"`
}

// NamesConfig configures the automatic-rename worker.
type NamesConfig struct {
	CheckInterval Duration `yaml:"check_interval" json:"check_interval"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	// Dir holds go-tmux.log; empty logs to stderr.
	Dir        string `yaml:"dir" json:"dir"`
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// MetricsConfig toggles the in-process OpenTelemetry provider.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Config is the whole configuration file.
type Config struct {
	// Shell is the default-shell; empty uses $SHELL.
	Shell       string `yaml:"shell" json:"shell"`
	DefaultSize Size   `yaml:"default_size" json:"default_size"`
	// Options are global option overrides keyed by option name.
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
	// Environment is added to the global environment.
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	// StartupCommands are tmux command lines run once the server is built.
	StartupCommands []string      `yaml:"startup_commands,omitempty" json:"startup_commands,omitempty"`
	Jobs            JobsConfig    `yaml:"jobs" json:"jobs"`
	Status          StatusConfig  `yaml:"status" json:"status"`
	Names           NamesConfig   `yaml:"names" json:"names"`
	Log             LogConfig     `yaml:"log" json:"log"`
	Metrics         MetricsConfig `yaml:"metrics" json:"metrics"`
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		DefaultSize: Size{Cols: 80, Rows: 24},
		Jobs: JobsConfig{
			TidyInterval: Duration(time.Minute),
			MaxIdle:      Duration(time.Hour),
		},
		Status: StatusConfig{
			ListenAddr:     "127.0.0.1:7681",
			RedrawInterval: Duration(100 * time.Millisecond),
			RedrawBurst:    4,
		},
		Names: NamesConfig{
			CheckInterval: Duration(500 * time.Millisecond),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultPath resolves the config file path: $XDG_CONFIG_HOME, then
// ~/.config, then os.TempDir() when the home directory cannot be resolved.
// The temp-dir fallback is not a stable persistence location.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve XDG_CONFIG_HOME/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "go-tmux", "config.yaml")
}

// Load reads the config file. A missing or empty file yields the defaults.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("[DEBUG-CONFIG] config loaded", "path", path,
		"options", len(cfg.Options), "startupCommands", len(cfg.StartupCommands))
	return cfg, nil
}

// EnsureFile writes the default config if missing and returns the loaded
// config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Clone returns a deep copy of src.
func Clone(src Config) Config {
	dst := src
	if src.Options != nil {
		dst.Options = make(map[string]string, len(src.Options))
		for k, v := range src.Options {
			dst.Options[k] = v
		}
	}
	if src.Environment != nil {
		dst.Environment = make(map[string]string, len(src.Environment))
		for k, v := range src.Environment {
			dst.Environment[k] = v
		}
	}
	dst.StartupCommands = slices.Clone(src.StartupCommands)
	return dst
}

// Save validates cfg and writes it to path atomically. It returns the
// normalized config that was written.
func Save(path string, cfg Config) (Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return cfg, errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmed)
	if err != nil {
		return cfg, fmt.Errorf("save config: resolve path: %w", err)
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(absolutePath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", absolutePath)
	return cfg, nil
}

// atomicWrite writes data using temp-file + rename so readers (and the
// watcher) never see a partial file.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// Validate reports the first invalid field of cfg.
func (c Config) Validate() error {
	if err := validateShell(c.Shell); err != nil {
		return err
	}
	if c.DefaultSize.Cols < 1 || c.DefaultSize.Cols > maxTerminalSize ||
		c.DefaultSize.Rows < 1 || c.DefaultSize.Rows > maxTerminalSize {
		return fmt.Errorf("default_size: %dx%d out of range", c.DefaultSize.Cols, c.DefaultSize.Rows)
	}
	for name := range c.Options {
		base, _, _, err := options.ParseName(name)
		if err != nil {
			return fmt.Errorf("options: %w", err)
		}
		if strings.HasPrefix(base, "@") {
			continue
		}
		if _, ok := options.Find(base); !ok {
			return fmt.Errorf("options: %w: %s", options.ErrUnknownOption, base)
		}
	}
	for name := range c.Environment {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "=\x00") {
			return fmt.Errorf("environment: invalid variable name %q", name)
		}
	}
	for i, line := range c.StartupCommands {
		if strings.TrimSpace(line) == "" {
			return fmt.Errorf("startup_commands[%d]: empty command", i)
		}
	}
	if c.Jobs.TidyInterval < 0 || c.Jobs.MaxIdle < 0 {
		return errors.New("jobs: durations must not be negative")
	}
	if c.Status.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.Status.ListenAddr); err != nil {
			return fmt.Errorf("status.listen_addr: %w", err)
		}
	}
	if c.Status.RedrawInterval < 0 || c.Status.RedrawBurst < 0 {
		return errors.New("status: redraw_interval and redraw_burst must not be negative")
	}
	if c.Names.CheckInterval < 0 {
		return errors.New("names.check_interval must not be negative")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level: %q is not one of %s", c.Log.Level, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("log.format: %q is not one of %s", c.Log.Format, strings.Join(logFormats, ", "))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return errors.New("log: rotation limits must not be negative")
	}
	return nil
}

// applyDefaultsAndValidate fills zero fields from DefaultConfig and
// validates cfg in place.
// MUTATES: cfg is directly modified.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		*cfg = defaults
		return nil
	}
	cfg.Shell = strings.TrimSpace(cfg.Shell)
	if cfg.DefaultSize.Cols == 0 {
		cfg.DefaultSize.Cols = defaults.DefaultSize.Cols
	}
	if cfg.DefaultSize.Rows == 0 {
		cfg.DefaultSize.Rows = defaults.DefaultSize.Rows
	}
	if cfg.Jobs.TidyInterval == 0 {
		cfg.Jobs.TidyInterval = defaults.Jobs.TidyInterval
	}
	if cfg.Jobs.MaxIdle == 0 {
		cfg.Jobs.MaxIdle = defaults.Jobs.MaxIdle
	}
	if cfg.Status.RedrawInterval == 0 {
		cfg.Status.RedrawInterval = defaults.Status.RedrawInterval
	}
	if cfg.Status.RedrawBurst == 0 {
		cfg.Status.RedrawBurst = defaults.Status.RedrawBurst
	}
	if cfg.Names.CheckInterval == 0 {
		cfg.Names.CheckInterval = defaults.Names.CheckInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	return cfg.Validate()
}

// validateShell accepts an empty shell (use $SHELL) or an absolute path.
func validateShell(shell string) error {
	if shell == "" {
		return nil
	}
	if strings.ContainsRune(shell, 0) {
		return errors.New("shell: contains NUL byte")
	}
	if !filepath.IsAbs(shell) {
		return fmt.Errorf("shell: %q must be an absolute path", shell)
	}
	return nil
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path is a directory: %s", path)
	}

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
