// Package watch runs a handler for every battle log dropped into an inbox
// directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"battlescribe/internal/logging"
	"battlescribe/internal/transcript"
)

// Handler processes one settled transcript file.
type Handler func(ctx context.Context, path string) error

// DefaultDebounce is how long a file must stay untouched before it is
// handed to the Handler. Exports are often written in several chunks.
const DefaultDebounce = 500 * time.Millisecond

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Handled       int
	Failed        int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher watches an inbox directory for transcript files.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	handler     Handler
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// New creates a watcher over dir. A debounce of zero uses DefaultDebounce.
func New(dir string, debounce time.Duration, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watch handler is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		watcher:     fw,
		dir:         dir,
		handler:     handler,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start creates the inbox if needed and begins watching it. It does not
// block. Files already in the inbox are queued as if just written. A failed
// Start releases the underlying watcher; the Watcher cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.watcher.Close()
		return fmt.Errorf("failed to create inbox %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	logging.Watch("Watching %s for battle logs", w.dir)

	w.queueExisting()

	w.running = true
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for an in-flight handler to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("Error closing watcher: %v", err)
	}
	logging.Watch("Watcher stopped")
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} { return w.doneCh }

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// queueExisting is called with w.mu held.
func (w *Watcher) queueExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if transcript.IsTranscript(path) {
			w.debounceMap[path] = time.Now()
		}
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

// handleEvent records create and write events on transcript files.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !transcript.IsTranscript(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = time.Now()
	w.debounceMap[event.Name] = time.Now()
}

type settledFile struct {
	path string
	at   time.Time
}

// processSettled hands files untouched for the debounce window to the
// handler, least recently written first. Ties go by path.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []settledFile
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, settledFile{path: path, at: at})
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].at.Equal(ready[j].at) {
			return ready[i].at.Before(ready[j].at)
		}
		return ready[i].path < ready[j].path
	})

	for _, f := range ready {
		path := f.path
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}

		logging.Watch("Processing %s", path)
		err := w.handler(ctx, path)

		w.mu.Lock()
		if err != nil {
			w.stats.Failed++
		} else {
			w.stats.Handled++
		}
		w.mu.Unlock()

		if err != nil {
			logging.Get(logging.CategoryWatch).Warn("Failed to process %s: %v", path, err)
		}
	}
}
