package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/Ludentes/RooDemo-sub001/pkg/config"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
	"github.com/Ludentes/RooDemo-sub001/pkg/metrics"
)

// Handler receives the path of a file that appeared under a watched
// directory and stopped growing.
type Handler func(path string)

type pendingFile struct {
	size  int64
	timer *time.Timer
}

// Watcher monitors registered directory trees and hands stable files to
// the handler. A file is stable once its size stops changing for the
// debounce interval; that guards against picking up half-copied exports.
type Watcher struct {
	notifier *fsnotify.Watcher
	handler  Handler
	cfg      config.Watch
	logger   *logger.Logger

	roots   *xsync.Map[string, time.Time]
	pending *xsync.Map[string, *pendingFile]

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

func NewWatcher(cfg config.Watch, handler Handler, log *logger.Logger) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	return &Watcher{
		notifier: notifier,
		handler:  handler,
		cfg:      cfg,
		logger:   log,
		roots:    xsync.NewMap[string, time.Time](),
		pending:  xsync.NewMap[string, *pendingFile](),
	}, nil
}

// Start launches the event loop. Registrations are accepted before and
// after Start.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.done = make(chan struct{})
	go w.loop()
	w.started = true
	w.logger.Infow("Filesystem watcher started", "debounce", w.cfg.Debounce, "patterns", w.cfg.Patterns)
}

// Stop halts the event loop and cancels pending stability timers.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	close(w.done)
	w.notifier.Close()
	w.pending.Range(func(path string, p *pendingFile) bool {
		p.timer.Stop()
		w.pending.Delete(path)
		return true
	})
	w.started = false
	w.logger.Infow("Filesystem watcher stopped")
}

// Register adds a directory tree to the watch set. Existing matching
// files are picked up through the same stability path as new ones.
func (w *Watcher) Register(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	root = filepath.Clean(root)
	if _, loaded := w.roots.LoadOrStore(root, time.Now()); loaded {
		return nil
	}

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.notifier.Add(path)
		}
		if w.matches(path) {
			w.scheduleCheck(path)
		}
		return nil
	})
	if err != nil {
		w.roots.Delete(root)
		return fmt.Errorf("failed to register %s: %w", root, err)
	}

	metrics.WatchedDirectories.Set(float64(w.roots.Size()))
	w.logger.Infow("Registered watch directory", "path", root)
	return nil
}

// Unregister removes a directory tree from the watch set.
func (w *Watcher) Unregister(root string) error {
	root = filepath.Clean(root)
	if _, ok := w.roots.Load(root); !ok {
		return fmt.Errorf("directory %s is not watched", root)
	}
	w.roots.Delete(root)

	for _, watched := range w.notifier.WatchList() {
		if watched == root || isUnder(root, watched) {
			// Remove errors are expected when the directory is already gone.
			w.notifier.Remove(watched)
		}
	}

	metrics.WatchedDirectories.Set(float64(w.roots.Size()))
	w.logger.Infow("Unregistered watch directory", "path", root)
	return nil
}

// List returns the registered roots and when each was added.
func (w *Watcher) List() map[string]time.Time {
	out := make(map[string]time.Time, w.roots.Size())
	w.roots.Range(func(root string, since time.Time) bool {
		out[root] = since
		return true
	})
	return out
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Filesystem watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		// New subdirectory inside a watched tree.
		if event.Op&fsnotify.Create != 0 {
			if err := w.notifier.Add(event.Name); err != nil {
				w.logger.Warnw("Failed to watch new subdirectory", "path", event.Name, "error", err)
			}
		}
		return
	}

	if w.matches(event.Name) {
		w.scheduleCheck(event.Name)
	}
}

// scheduleCheck arms (or re-arms) the stability timer for a file.
func (w *Watcher) scheduleCheck(path string) {
	if p, ok := w.pending.Load(path); ok {
		p.timer.Reset(w.cfg.Debounce)
		return
	}

	p := &pendingFile{size: -1}
	p.timer = time.AfterFunc(w.cfg.Debounce, func() {
		w.checkStable(path)
	})
	if existing, loaded := w.pending.LoadOrStore(path, p); loaded {
		p.timer.Stop()
		existing.timer.Reset(w.cfg.Debounce)
	}
}

func (w *Watcher) checkStable(path string) {
	p, ok := w.pending.Load(path)
	if !ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		w.pending.Delete(path)
		return
	}

	if info.Size() != p.size {
		// Still growing; note the size and look again after the interval.
		p.size = info.Size()
		p.timer.Reset(w.cfg.Debounce)
		return
	}

	w.pending.Delete(path)
	w.logger.Infow("Detected stable file", "path", path, "size", info.Size())
	w.handler(path)
}

func (w *Watcher) matches(path string) bool {
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, pattern := range w.cfg.Patterns {
		if ok, err := filepath.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

func isUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
