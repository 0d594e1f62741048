package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period Watch waits for after the last
// change before calling onChange.
const DefaultDebounce = 200 * time.Millisecond

// Watch calls onChange after path is written, created or replaced. It
// watches the parent directory so editors that save by rename are seen.
// Watch returns once the watcher is registered; changes are handled in the
// background until ctx is done, after which the returned channel is closed.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(), logger *slog.Logger) (<-chan struct{}, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Debug("watching workflow file", slog.String("path", abs))

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer w.Close()
		watchLoop(ctx, w, abs, debounce, onChange, logger)
	}()
	return done, nil
}

func watchLoop(ctx context.Context, w *fsnotify.Watcher, abs string, debounce time.Duration, onChange func(), logger *slog.Logger) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			logger.Info("workflow file changed", slog.String("path", abs))
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}
