// Package watcher re-runs indexing when files under the repository root
// change. Because indexing reconciles from current content, the watcher does
// not need per-file event plumbing; it coalesces bursts of filesystem events
// into a single trigger.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

// DefaultDebounce is how long the watcher waits after the last event before
// triggering a reindex.
const DefaultDebounce = 500 * time.Millisecond

// Trigger is invoked once per coalesced burst of changes.
type Trigger func(ctx context.Context) error

// Watcher watches a directory tree with fsnotify and fires a trigger after
// each debounced burst of events.
type Watcher struct {
	root     string
	debounce time.Duration
	trigger  Trigger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timer   *time.Timer
	running bool
}

// New builds a watcher over root. A non-positive debounce uses the default.
func New(root string, debounce time.Duration, trigger Trigger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, debounce: debounce, trigger: trigger}
}

// Run watches until the context is cancelled. New directories created while
// running are added to the watch set; deleted ones fall out on their own.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeInternal, "starting file watcher failed")
	}
	defer fsw.Close()

	w.mu.Lock()
	w.fsw = fsw
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	slog.Info("watching for changes",
		slog.String("root", w.root),
		slog.Duration("debounce", w.debounce))

	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.running = false
			w.mu.Unlock()
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.skip(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						slog.Warn("watching new directory failed",
							slog.String("dir", event.Name),
							slog.String("error", err.Error()))
					}
				}
			}
			w.resetTimer(fire)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))

		case <-fire:
			start := time.Now()
			if err := w.trigger(ctx); err != nil {
				if trawlerr.IsFatal(err) {
					return err
				}
				slog.Error("reindex after change failed",
					slog.String("error", err.Error()))
				continue
			}
			slog.Debug("reindex after change complete",
				slog.Duration("elapsed", time.Since(start)))
		}
	}
}

func (w *Watcher) resetTimer(fire chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	})
}

// addTree registers root and every non-hidden subdirectory.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Debug("could not watch directory",
				slog.String("dir", path),
				slog.String("error", err.Error()))
		}
		return nil
	})
}

// skip filters events from paths the indexer never reads. Git touches its
// own metadata constantly; reacting to it would loop the watcher.
func (w *Watcher) skip(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == ".git" || (strings.HasPrefix(part, ".") && part != "." && part != ".codetrawl.yaml") {
			return true
		}
	}
	return false
}
