package document

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultReloadDebounce = 500 * time.Millisecond

// Reloader re-reads a corpus snapshot.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watcher reloads the store when its snapshot file is replaced or rewritten.
type Watcher struct {
	store    Reloader
	path     string
	debounce time.Duration
	onReload func()
	logger   *zap.Logger
}

// NewWatcher creates a snapshot watcher. onReload (may be nil) runs after each successful reload.
func NewWatcher(store Reloader, path string, onReload func(), logger *zap.Logger) *Watcher {
	return &Watcher{
		store:    store,
		path:     filepath.Clean(path),
		debounce: defaultReloadDebounce,
		onReload: onReload,
		logger:   logger,
	}
}

// WithDebounce sets how long the file must stay quiet before a reload.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory: snapshot refreshes usually replace the file via rename.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			reload = timer.C

		case <-reload:
			reload = nil
			if err := w.store.Reload(ctx); err != nil {
				w.logger.Warn("Snapshot reload failed, keeping current corpus",
					zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.logger.Info("Snapshot reloaded", zap.String("path", w.path))
			if w.onReload != nil {
				w.onReload()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Snapshot watcher error", zap.Error(err))
		}
	}
}
