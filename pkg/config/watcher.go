package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// InventoryWatcher watches the proxy inventory file for changes and
// triggers reloads. Rapid write bursts (editors, atomic renames) are
// debounced so one save produces one reload.
type InventoryWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	path     string
	debounce time.Duration

	mu      sync.Mutex
	running bool
}

// NewInventoryWatcher creates a watcher for the given inventory file.
func NewInventoryWatcher(path string, logger *slog.Logger) (*InventoryWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("inventory watcher requires a path")
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &InventoryWatcher{
		watcher:  watcher,
		logger:   logger.With("component", "config.watcher"),
		path:     path,
		debounce: 200 * time.Millisecond,
	}, nil
}

// Watch blocks, invoking onReload with the freshly parsed inventory after
// each change, until the context is cancelled. Reload errors are logged
// and the watcher keeps running; a broken intermediate save must not take
// down the process.
func (w *InventoryWatcher) Watch(ctx context.Context, onReload func(*Inventory)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.path, err)
	}

	w.logger.Info("inventory watcher started", "path", w.path)

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inventory watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			inv, err := LoadInventory(w.path)
			if err != nil {
				w.logger.Error("inventory reload failed", "error", err)
				continue
			}
			w.logger.Info("inventory reloaded", "path", w.path)
			onReload(inv)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inventory watcher error", "error", err)
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *InventoryWatcher) Close() error {
	return w.watcher.Close()
}
