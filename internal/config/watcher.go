package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/halcyonware/halcyon/internal/logger"
)

// Watcher reloads the configuration file when it changes on disk and hands
// each successfully parsed revision to the callback. Editors tend to emit
// bursts of write events for one save, so reloads are debounced.
type Watcher struct {
	path     string
	log      *logger.Logger
	onReload func(*Config)
	debounce time.Duration
}

// NewWatcher creates a watcher for path. onReload runs on the watcher
// goroutine; callers that need to fan the config out do so themselves.
func NewWatcher(path string, log *logger.Logger, onReload func(*Config)) *Watcher {
	if log == nil {
		log = logger.Global()
	}
	return &Watcher{
		path:     path,
		log:      log.WithPrefix("config"),
		onReload: onReload,
		debounce: 200 * time.Millisecond,
	}
}

// Run watches until ctx is cancelled. The parent directory is watched
// rather than the file itself so rename-based saves keep working.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error: %v", err)
		case <-pending:
			timer = nil
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("reload of %s failed: %v", w.path, err)
		return
	}
	w.log.Info("configuration reloaded from %s", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
