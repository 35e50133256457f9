package lifecycle

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	// DefaultCleanupPoll is how often queued directories are re-checked.
	DefaultCleanupPoll = 1 * time.Second

	// pollSlice bounds how long Stop waits on the sleeping loop.
	pollSlice = 100 * time.Millisecond

	stopJoinTimeout = 5 * time.Second
)

// CleanupManager deletes displaced index directories once no query holds a
// reference to them. Directories that still have readers, or whose removal
// fails, stay queued and are retried on the next poll.
type CleanupManager struct {
	tracker *QueryTracker
	poll    time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewCleanupManager wires a manager to the tracker whose counts gate
// deletion. A non-positive poll interval uses DefaultCleanupPoll.
func NewCleanupManager(tracker *QueryTracker, poll time.Duration) *CleanupManager {
	if poll <= 0 {
		poll = DefaultCleanupPoll
	}
	return &CleanupManager{
		tracker: tracker,
		poll:    poll,
		pending: make(map[string]struct{}),
	}
}

// Schedule queues a directory for deletion. Scheduling the same path twice
// is harmless.
func (c *CleanupManager) Schedule(path string) {
	if path == "" {
		return
	}
	c.mu.Lock()
	c.pending[path] = struct{}{}
	c.mu.Unlock()
	slog.Debug("scheduled index directory for cleanup", slog.String("path", path))
}

// Pending returns the paths currently queued.
func (c *CleanupManager) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.pending))
	for p := range c.pending {
		paths = append(paths, p)
	}
	return paths
}

// Start launches the poll loop. Calling Start on a running manager is a
// no-op.
func (c *CleanupManager) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(c.stop, c.done)
}

// Stop halts the poll loop, waiting briefly for the current sweep to finish.
// Queued paths survive Stop and are swept again after a restart.
func (c *CleanupManager) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		slog.Warn("cleanup loop did not stop in time")
	}
}

func (c *CleanupManager) loop(stop, done chan struct{}) {
	defer close(done)
	for {
		c.Sweep()
		if !c.sleep(stop) {
			return
		}
	}
}

// sleep waits one poll interval in small slices so Stop is honored promptly.
func (c *CleanupManager) sleep(stop chan struct{}) bool {
	remaining := c.poll
	for remaining > 0 {
		slice := pollSlice
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-stop:
			return false
		case <-time.After(slice):
		}
		remaining -= slice
	}
	return true
}

// Sweep attempts one pass over the queue, deleting every directory whose
// reference count is zero. It is exported so callers can force a pass in
// tests and during shutdown.
func (c *CleanupManager) Sweep() {
	for _, path := range c.Pending() {
		if n := c.tracker.RefCount(path); n > 0 {
			slog.Debug("cleanup deferred, queries active",
				slog.String("path", path), slog.Int("refs", n))
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("removing index directory failed, will retry",
				slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		c.mu.Lock()
		delete(c.pending, path)
		c.mu.Unlock()
		slog.Info("removed displaced index directory", slog.String("path", path))
	}
}
