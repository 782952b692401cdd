package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the event bursts editors and atomic saves produce.
var watchDebounce = 200 * time.Millisecond

// Watch reloads path whenever it changes and passes the new config to
// onChange. The parent directory is watched so rename-based saves are seen.
// Configs that fail to load are logged and skipped. Watch blocks until ctx
// is done.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch config: resolve path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(absolutePath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config: add %s: %w", dir, err)
	}
	slog.Debug("[DEBUG-CONFIG] watching config", "path", absolutePath)

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	reload := func() {
		cfg, err := Load(absolutePath)
		if err != nil {
			slog.Warn("[WARN-CONFIG] reload failed, keeping current config", "path", absolutePath, "error", err)
			return
		}
		slog.Info("[DEBUG-CONFIG] config reloaded", "path", absolutePath)
		onChange(cfg)
	}
	defer func() {
		mu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absolutePath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				if ctx.Err() != nil {
					return
				}
				reload()
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", err)
		}
	}
}
