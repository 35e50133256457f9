package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
	"github.com/codetrawl/codetrawl/internal/registry"
)

// MinRefreshInterval is the floor for the refresh period. Anything lower
// hammers remotes for no benefit.
const MinRefreshInterval = 60 * time.Second

// IndexBuilder produces a fresh index of sourceDir under destDir. The
// refresh loop does not know how indexing works; the command layer injects
// it.
type IndexBuilder func(ctx context.Context, sourceDir, destDir string) error

// RefreshScheduler periodically walks the registry, updates sources that
// moved, builds a new index version, and swaps each alias over. Old versions
// are handed to the cleanup manager rather than deleted inline, so in-flight
// queries finish against the directory they resolved.
type RefreshScheduler struct {
	reg      registry.Registry
	aliases  *registry.AliasManager
	cleanup  *CleanupManager
	build    IndexBuilder
	interval time.Duration
	srcRoot  string
	idxRoot  string
	join     time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// RefreshConfig carries the scheduler's collaborators. Cleanup must be
// constructed first; the scheduler only queues paths, never removes them.
type RefreshConfig struct {
	Registry   registry.Registry
	Aliases    *registry.AliasManager
	Cleanup    *CleanupManager
	Build      IndexBuilder
	Interval   time.Duration
	SourceRoot string
	IndexRoot  string
}

// NewRefreshScheduler validates and wires a scheduler. Intervals below the
// floor are raised to it.
func NewRefreshScheduler(cfg RefreshConfig) (*RefreshScheduler, error) {
	if cfg.Registry == nil || cfg.Aliases == nil || cfg.Cleanup == nil || cfg.Build == nil {
		return nil, trawlerr.New(trawlerr.ErrCodeInternal,
			"refresh scheduler is missing a collaborator")
	}
	interval := cfg.Interval
	if interval < MinRefreshInterval {
		if interval > 0 {
			slog.Warn("refresh interval below floor, raising",
				slog.Duration("requested", interval),
				slog.Duration("floor", MinRefreshInterval))
		}
		interval = MinRefreshInterval
	}
	return &RefreshScheduler{
		reg:      cfg.Registry,
		aliases:  cfg.Aliases,
		cleanup:  cfg.Cleanup,
		build:    cfg.Build,
		interval: interval,
		srcRoot:  cfg.SourceRoot,
		idxRoot:  cfg.IndexRoot,
		join:     stopJoinTimeout,
	}, nil
}

// Start launches the refresh loop. Idempotent.
func (s *RefreshScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for the current cycle to wind down. The
// join is bounded: a build callback that ignores cancellation must not hang
// the caller.
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(s.join):
		slog.Warn("refresh loop did not stop in time")
	}
}

func (s *RefreshScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// RefreshAll runs one refresh cycle over every temporal-enabled entry. A
// failure in one repo is logged and the cycle continues with the rest.
func (s *RefreshScheduler) RefreshAll(ctx context.Context) {
	entries, err := s.reg.List()
	if err != nil {
		slog.Error("listing registry for refresh failed", slog.String("error", err.Error()))
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !entry.EnableTemporal {
			continue
		}
		if entry.RefreshInterval > 0 && time.Since(entry.LastRefresh) < entry.RefreshInterval {
			continue
		}
		if err := s.RefreshOne(ctx, entry); err != nil {
			slog.Error("refreshing repository failed",
				slog.String("repo", entry.RepoName),
				slog.String("error", err.Error()))
		}
	}
}

// RefreshOne updates a single repository: detect changes, update the source,
// build a new timestamped index version, swap the alias, and queue the
// displaced version for cleanup.
func (s *RefreshScheduler) RefreshOne(ctx context.Context, entry registry.Entry) error {
	sourceDir := filepath.Join(s.srcRoot, entry.RepoName)
	strategy := StrategyFor(entry, sourceDir)

	changed, err := strategy.HasChanges(ctx)
	if err != nil {
		return err
	}
	if !changed {
		slog.Debug("repository unchanged, skipping refresh",
			slog.String("repo", entry.RepoName))
		return nil
	}

	if err := strategy.Update(ctx); err != nil {
		return err
	}

	oldPath, err := s.aliases.ResolvePath(entry.AliasName)
	if err != nil {
		return err
	}

	newPath := s.versionDir(entry.RepoName)
	if err := os.MkdirAll(newPath, 0o755); err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeFilePermission,
			"creating index version directory failed").WithDetail("path", newPath)
	}

	if err := s.build(ctx, strategy.SourcePath(), newPath); err != nil {
		// The half-built version is garbage immediately; no reader can
		// have resolved it.
		os.RemoveAll(newPath)
		return err
	}

	if err := s.aliases.Swap(entry.AliasName, oldPath, newPath); err != nil {
		os.RemoveAll(newPath)
		return err
	}

	now := time.Now().UTC()
	if err := s.reg.Touch(entry.RepoName, newPath, now); err != nil {
		slog.Warn("recording refresh in registry failed",
			slog.String("repo", entry.RepoName),
			slog.String("error", err.Error()))
	}

	s.cleanup.Schedule(oldPath)
	slog.Info("repository refreshed",
		slog.String("repo", entry.RepoName),
		slog.String("index", newPath))
	return nil
}

func (s *RefreshScheduler) versionDir(repoName string) string {
	return filepath.Join(s.idxRoot, repoName,
		fmt.Sprintf("v%s", time.Now().UTC().Format("20060102T150405")))
}
