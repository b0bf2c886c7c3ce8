// Package watch re-runs analysis when source files change.
package watch

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/reach/internal/scanner"
	"github.com/panbanda/reach/pkg/config"
)

// DefaultDebounce is the quiet period a burst of changes must end with.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the sorted slash paths, relative to the watched root,
// that changed during one burst.
type ChangeFunc func(ctx context.Context, changed []string)

// Watcher monitors a tree and reports debounced batches of changes. Batches
// are delivered one at a time, so an analysis never overlaps the next.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    *config.Config
	scanner   *scanner.Scanner
	debounce  time.Duration
	path      string
	callback  ChangeFunc
	logger    *slog.Logger
	out       io.Writer

	mu      sync.Mutex
	pending map[string]struct{}
	latest  time.Time
}

// Option is a functional option for configuring Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period; non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger for watch errors.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOutput sets where status lines are printed.
func WithOutput(out io.Writer) Option {
	return func(w *Watcher) {
		if out != nil {
			w.out = out
		}
	}
}

// NewWatcher creates a watcher for the tree at path.
func NewWatcher(path string, cfg *config.Config, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		scanner:   scanner.NewScanner(cfg),
		debounce:  DefaultDebounce,
		path:      path,
		logger:    slog.Default(),
		out:       os.Stdout,
		pending:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// SetCallback sets the function to call after a burst of changes.
func (w *Watcher) SetCallback(cb ChangeFunc) {
	w.callback = cb
}

// addTree watches dir and every directory below it that is not excluded.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.path && slices.Contains(w.config.Exclude.Dirs, d.Name()) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// Start begins watching and blocks until ctx is done or the watcher is
// stopped.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.path); err != nil {
		return err
	}

	color.New(color.FgCyan).Fprintf(w.out, "Watching for changes in %s...\n", w.path)
	color.New(color.FgCyan).Fprintln(w.out, "Press Ctrl+C to stop")

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent records a change to an analyzed file. New directories are
// added to the watch list.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !slices.Contains(w.config.Exclude.Dirs, info.Name()) {
				if err := w.addTree(event.Name); err != nil {
					w.logger.Warn("watch directory", slog.String("path", event.Name), slog.String("error", err.Error()))
				}
			}
			return
		}
	}

	rel, err := filepath.Rel(w.path, event.Name)
	if err != nil {
		rel = event.Name
	}
	if !w.scanner.Accept(rel) {
		return
	}

	w.mu.Lock()
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	w.latest = time.Now()
	w.mu.Unlock()
}

// processDebounced flushes pending changes until ctx is done.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending delivers every pending change once the tree has been quiet
// for the debounce period.
func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 || time.Since(w.latest) < w.debounce {
		w.mu.Unlock()
		return
	}
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	clear(w.pending)
	w.mu.Unlock()

	slices.Sort(changed)
	if w.callback == nil {
		return
	}
	for _, p := range changed {
		color.New(color.FgYellow).Fprintf(w.out, "Changed: %s\n", p)
	}
	w.callback(ctx, changed)
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
