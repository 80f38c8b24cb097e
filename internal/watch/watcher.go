// Package watch reports content changes of individual files.
//
// Parent directories are watched rather than the files themselves so that editors
// which save by writing a temp file and renaming it over the original are still seen.
// Events are debounced per file, then the file is re-snapshotted; a Change is only
// emitted when the SHA-512 snapshot actually differs.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"sculptor/internal/logging"
	"sculptor/internal/shasnap"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 200 * time.Millisecond

// ErrStopped is returned by Start and Add once Stop has been called.
var ErrStopped = errors.New("watch: watcher stopped")

// Change describes one observed content change.
type Change struct {
	ID       string
	Path     string
	Previous string // snapshot before, "" if the file did not exist
	Current  string // snapshot after, "" if Removed
	Removed  bool
	At       time.Time
}

// Handler receives changes. It runs on the watcher goroutine.
type Handler func(ctx context.Context, c Change)

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	Handler  Handler
}

// Stats tracks watcher activity.
type Stats struct {
	Events     int
	Changes    int
	Suppressed int // settled events whose content snapshot did not change
	Errors     int
	LastPath   string
	LastChange time.Time
}

// Watcher watches a set of files for content changes.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	handler     Handler
	debounceDur time.Duration
	files       map[string]string // path -> last snapshot ("" = absent)
	dirs        map[string]int
	pending     map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stopped     bool
	stats       Stats
}

// New creates a Watcher. Call Add and Start to begin receiving changes.
func New(opts Options) (*Watcher, error) {
	if opts.Handler == nil {
		return nil, errors.New("watch: handler required")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	d := opts.Debounce
	if d <= 0 {
		d = DefaultDebounce
	}
	return &Watcher{
		watcher:     fw,
		handler:     opts.Handler,
		debounceDur: d,
		files:       make(map[string]string),
		dirs:        make(map[string]int),
		pending:     make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Add starts tracking files. Their current snapshot becomes the baseline;
// files that do not exist yet are tracked as absent.
func (w *Watcher) Add(paths ...string) error {
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		abs = filepath.Clean(abs)

		baseline, err := snapshot(abs)
		if err != nil {
			return err
		}

		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return ErrStopped
		}
		if _, ok := w.files[abs]; ok {
			w.mu.Unlock()
			continue
		}
		dir := filepath.Dir(abs)
		if w.dirs[dir] == 0 {
			if err := w.watcher.Add(dir); err != nil {
				w.mu.Unlock()
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
		}
		w.dirs[dir]++
		w.files[abs] = baseline
		w.mu.Unlock()

		logging.Get(logging.CategoryWatch).Debug("watching %s (baseline %s)", abs, shasnap.Short(baseline))
	}
	return nil
}

// Files returns the tracked paths, sorted.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Start begins watching. This method is non-blocking.
// A stopped watcher cannot be restarted; create a new one instead.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
	logging.Get(logging.CategoryWatch).Info("watcher started for %d files", len(w.Files()))
	return nil
}

// Stop stops the watcher and waits for cleanup. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if !w.running {
		// Never started, so run will not close doneCh.
		close(w.doneCh)
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
	}
	logging.Get(logging.CategoryWatch).Info("watcher stopped")
}

// Wait blocks until the event loop has exited, e.g. after ctx is cancelled or Stop.
func (w *Watcher) Wait() {
	<-w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 4
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
			logging.Get(logging.CategoryWatch).Error("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, tracked := w.files[path]; !tracked {
		return
	}
	w.stats.Events++
	w.pending[path] = time.Now()
	logging.Get(logging.CategoryWatch).Debug("%s event for %s", event.Op, path)
}

// processSettled re-snapshots files whose last event is older than the debounce window.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	sort.Strings(settled)
	for _, path := range settled {
		w.check(ctx, path)
	}
}

func (w *Watcher) check(ctx context.Context, path string) {
	current, err := snapshot(path)
	if err != nil {
		logging.Get(logging.CategoryWatch).Error("failed to snapshot %s: %v", path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	previous := w.files[path]
	if previous == current {
		w.stats.Suppressed++
		w.mu.Unlock()
		logging.Get(logging.CategoryWatch).Debug("%s touched but content unchanged", path)
		return
	}
	w.files[path] = current
	c := Change{
		ID:       uuid.NewString(),
		Path:     path,
		Previous: previous,
		Current:  current,
		Removed:  current == "",
		At:       time.Now(),
	}
	w.stats.Changes++
	w.stats.LastPath = path
	w.stats.LastChange = c.At
	w.mu.Unlock()

	logging.Get(logging.CategoryWatch).Info("%s changed: %s -> %s", path, shasnap.Short(previous), shasnap.Short(current))
	w.handler(ctx, c)
}

// Stats returns the current watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// IsWatching returns true if the watcher is currently running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// snapshot returns "" for a missing file.
func snapshot(path string) (string, error) {
	digest, _, err := shasnap.SnapFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return digest, nil
}
