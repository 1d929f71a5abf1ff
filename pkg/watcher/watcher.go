// Package watcher re-runs a callback when a watched model file changes,
// debouncing the bursts that editors and CAD exporters produce while
// saving.
package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/philipparndt/gocad/internal/logging"
)

// Watcher dispatches debounced change notifications for a set of files.
type Watcher struct {
	fsw      *fsnotify.Watcher
	log      *slog.Logger
	debounce time.Duration

	mu        sync.Mutex
	callbacks map[string]func(string)
	timers    map[string]*time.Timer
}

// New creates a watcher that waits for the given quiet period before
// notifying.
func New(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		fsw:       fsw,
		log:       logging.New("watcher"),
		debounce:  debounce,
		callbacks: make(map[string]func(string)),
		timers:    make(map[string]*time.Timer),
	}, nil
}

// Watch registers a file. The callback receives the absolute path after
// each debounced change.
func (w *Watcher) Watch(path string, callback func(string)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := w.fsw.Add(abs); err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	w.mu.Lock()
	w.callbacks[abs] = callback
	w.mu.Unlock()
	return nil
}

// Start consumes filesystem events until Close is called.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				w.handle(event)
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.log.Error("watch error", "error", err)
			}
		}
	}()
}

func (w *Watcher) handle(event fsnotify.Event) {
	// Many tools save by writing a new file and renaming it over the old
	// one, which drops the watch. Re-arm it and treat the event as a
	// change.
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.mu.Lock()
		_, watched := w.callbacks[event.Name]
		w.mu.Unlock()
		if watched {
			if err := w.fsw.Add(event.Name); err != nil {
				w.log.Warn("failed to re-arm watch", "path", event.Name, "error", err)
				return
			}
			w.trigger(event.Name)
		}
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		w.trigger(event.Name)
	}
}

// trigger schedules the callback, restarting the quiet-period timer on
// every further event for the same file.
func (w *Watcher) trigger(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	callback, ok := w.callbacks[path]
	if !ok {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		callback(path)
	})
}

// Close stops watching and releases the underlying notifier.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()
	return w.fsw.Close()
}
