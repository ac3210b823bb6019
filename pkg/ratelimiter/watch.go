package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads a YAML config file into a RateLimiter whenever the
// file changes. Bursts of events are debounced into a single reload.
type ConfigWatcher struct {
	path     string
	limiter  RateLimiter
	logger   *slog.Logger
	debounce time.Duration
}

// NewConfigWatcher creates a watcher for path. A nil logger uses slog.Default().
func NewConfigWatcher(path string, limiter RateLimiter, logger *slog.Logger) *ConfigWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigWatcher{
		path:     filepath.Clean(path),
		limiter:  limiter,
		logger:   logger.With("component", "ratelimiter.watcher"),
		debounce: 100 * time.Millisecond,
	}
}

// Reload reads the file and applies it. An invalid file leaves the
// active configuration in place.
func (w *ConfigWatcher) Reload() error {
	config, err := LoadConfigFromFile(w.path)
	if err != nil {
		return err
	}
	return w.limiter.UpdateConfig(config)
}

// Run watches until ctx is cancelled. The parent directory is watched
// rather than the file so that editors replacing the file are noticed.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.Info("config watcher started", "path", w.path)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	reload := func() {
		if err := w.Reload(); err != nil {
			w.logger.Error("config reload failed, keeping previous configuration",
				"path", w.path,
				"error", err,
			)
			return
		}
		w.logger.Info("config reloaded", "path", w.path)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
