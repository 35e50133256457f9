// Package lifecycle manages the life of global index directories: reference
// counting of in-flight queries, deferred cleanup of displaced versions, and
// the periodic refresh loop that produces new versions.
package lifecycle

import (
	"log/slog"
	"sync"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

// QueryTracker ref-counts in-flight queries per index path so a displaced
// index directory is never deleted out from under a reader.
type QueryTracker struct {
	mu   sync.Mutex
	refs map[string]int
}

// NewQueryTracker returns an empty tracker.
func NewQueryTracker() *QueryTracker {
	return &QueryTracker{refs: make(map[string]int)}
}

// Increment records the start of a query against path.
func (t *QueryTracker) Increment(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs[path]++
}

// Decrement records the end of a query. Decrementing a path with no active
// references is a bookkeeping bug in the caller and returns a fatal error;
// the count is never driven negative.
func (t *QueryTracker) Decrement(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.refs[path]
	if !ok || n <= 0 {
		return trawlerr.New(trawlerr.ErrCodeRefCountUnderflow,
			"query reference count would go negative").
			WithDetail("path", path)
	}
	if n == 1 {
		delete(t.refs, path)
		return nil
	}
	t.refs[path] = n - 1
	return nil
}

// RefCount returns the number of active queries against path.
func (t *QueryTracker) RefCount(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs[path]
}

// Track runs fn with the reference held, guaranteeing the decrement on every
// exit path.
func (t *QueryTracker) Track(path string, fn func() error) error {
	t.Increment(path)
	defer func() {
		if err := t.Decrement(path); err != nil {
			// Unreachable unless the tracker itself is broken; the
			// paired Increment above makes underflow impossible here.
			slog.Error("query tracker underflow", slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}()
	return fn()
}

// ActivePaths returns paths with at least one active query, for status
// output.
func (t *QueryTracker) ActivePaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.refs))
	for p := range t.refs {
		paths = append(paths, p)
	}
	return paths
}
