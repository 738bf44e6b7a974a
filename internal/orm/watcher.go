package orm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 200 * time.Millisecond

// Watcher calls a refresh function when files in the watched directories change.
// Directories created inside a watched directory are watched too.
type Watcher struct {
	refresh  func(context.Context) error
	debounce time.Duration
	logger   *logger.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	started atomic.Bool
}

// NewWatcher watches dirs. A zero debounce uses DefaultDebounce.
func NewWatcher(dirs []string, debounce time.Duration, refresh func(context.Context) error, log *logger.Logger) (*Watcher, error) {
	if refresh == nil {
		return nil, fmt.Errorf("refresh function is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch directory %s: %w", dir, err)
		}
	}

	return &Watcher{
		refresh:  refresh,
		debounce: debounce,
		logger:   log.Component("watcher"),
		watcher:  fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs the watch loop until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	if w.started.CompareAndSwap(false, true) {
		go w.loop(ctx)
	}
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	if w.started.Load() {
		<-w.doneCh
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.WithFields(map[string]any{
				"event": event.Op.String(),
				"file":  event.Name,
			}).Debug("model definitions changed")
			if event.Has(fsnotify.Create) {
				w.follow(event.Name)
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			if err := w.refresh(ctx); err != nil {
				w.logger.Error(err, "watch refresh failed")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error(err, "file watcher error")

		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) follow(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Error(err, "watch new directory")
	}
}
