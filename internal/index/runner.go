package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codetrawl/codetrawl/internal/chunk"
	"github.com/codetrawl/codetrawl/internal/embed"
	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
	"github.com/codetrawl/codetrawl/internal/gittopo"
	"github.com/codetrawl/codetrawl/internal/scanner"
	"github.com/codetrawl/codetrawl/internal/store"
)

// DefaultConcurrency is the number of files indexed in parallel.
const DefaultConcurrency = 4

// RunnerConfig wires an indexing run.
type RunnerConfig struct {
	// Root is the absolute project root.
	Root string

	// Store is the content store.
	Store store.ContentStore

	// Embedder produces vectors for new content.
	Embedder embed.Embedder

	// Chunker splits file content.
	Chunker chunk.Chunker

	// Scanner walks the tree.
	Scanner *scanner.Scanner

	// Topo reads git topology. Nil means the project is indexed without
	// branch metadata (plain mode).
	Topo gittopo.Topology

	// ExcludePatterns are scan excludes from config.
	ExcludePatterns []string

	// Concurrency bounds parallel file indexing (default 4).
	Concurrency int

	// Limit caps the number of files touched per run (0 = unlimited).
	Limit int
}

// RunStats summarizes one indexing run.
type RunStats struct {
	Branch   string
	Commit   string
	Scanned  int
	UpToDate int
	Missing  int
	Modified int
	Deleted  int
	Files    FileStats
	Duration time.Duration
}

// Runner drives scan, reconcile, and branch-aware indexing for one project.
// Runs are serialized per Runner.
type Runner struct {
	cfg RunnerConfig
	mu  sync.Mutex
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Runner{cfg: cfg}
}

// Run performs one complete indexing pass: resolve git context, reconcile,
// and apply the minimal work set. Any failure inside the git-aware path is
// fatal to the run; there is no fallback to plain indexing.
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()

	bc, err := r.resolveBranchContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := CheckMode(ctx, r.cfg.Store, bc.GitAware()); err != nil {
		return nil, err
	}

	if err := r.cfg.Store.EnsureCollection(ctx, r.cfg.Embedder.Dimensions()); err != nil {
		return nil, trawlerr.GitIndexingError(fmt.Errorf("ensure collection: %w", err))
	}

	files, err := r.cfg.Scanner.Scan(ctx, &scanner.Options{
		RootDir:          r.cfg.Root,
		RespectGitignore: true,
		ExcludePatterns:  r.cfg.ExcludePatterns,
	})
	if err != nil {
		return nil, trawlerr.GitIndexingError(fmt.Errorf("scan: %w", err))
	}

	result, err := Classify(ctx, r.cfg.Store, bc, files, r.cfg.Chunker, r.cfg.Limit)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{
		Branch:   bc.Branch,
		Commit:   bc.Commit,
		Scanned:  len(files),
		UpToDate: result.UpToDate,
		Missing:  result.Missing,
		Modified: result.Modified,
		Deleted:  result.Deleted,
	}

	slog.Info("reconciliation complete",
		slog.String("branch", bc.Branch),
		slog.Int("up_to_date", result.UpToDate),
		slog.Int("missing", result.Missing),
		slog.Int("modified", result.Modified),
		slog.Int("deleted", result.Deleted))

	indexer := NewIndexer(r.cfg.Store, r.cfg.Embedder, r.cfg.Chunker)

	var statsMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, item := range result.Work {
		item := item
		g.Go(func() error {
			var fs FileStats
			var err error

			switch item.State {
			case StateDeleted:
				fs, err = indexer.HideFile(gctx, bc, item.Path)
				if err == nil {
					VerifyDeletion(gctx, r.cfg.Store, bc, item.Path)
				}
			default:
				fs, err = indexer.IndexFile(gctx, bc, item.File)
			}
			if err != nil {
				return err
			}

			statsMu.Lock()
			stats.Files.Add(fs)
			statsMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Already a coded fatal error from the indexer; surface as-is.
		return nil, err
	}

	if bc.GitAware() {
		if err := r.cfg.Store.SetState(ctx, WatermarkKey(bc.Branch), bc.Commit); err != nil {
			return nil, trawlerr.GitIndexingError(fmt.Errorf("record watermark: %w", err))
		}
	}

	stats.Duration = time.Since(start)
	slog.Info("indexing run complete",
		slog.String("branch", bc.Branch),
		slog.String("commit", bc.Commit),
		slog.Int("embedded", stats.Files.Embedded),
		slog.Int("revealed", stats.Files.Revealed),
		slog.Int("hidden", stats.Files.Hidden),
		slog.Duration("duration", stats.Duration))

	return stats, nil
}

// resolveBranchContext reads the git coordinates for this run. A project
// without git metadata gets a plain context; a git project whose topology
// reads fail gets a fatal error, never a silent downgrade to plain mode.
func (r *Runner) resolveBranchContext(ctx context.Context) (*BranchContext, error) {
	if r.cfg.Topo == nil || !r.cfg.Topo.IsRepo(ctx) {
		return &BranchContext{}, nil
	}

	branch, err := r.cfg.Topo.CurrentBranch(ctx)
	if err != nil {
		return nil, trawlerr.GitIndexingError(fmt.Errorf("resolve branch: %w", err))
	}
	commit, err := r.cfg.Topo.CurrentCommit(ctx)
	if err != nil {
		return nil, trawlerr.GitIndexingError(fmt.Errorf("resolve commit: %w", err))
	}

	branches, err := r.cfg.Topo.Branches(ctx)
	if err != nil {
		return nil, trawlerr.GitIndexingError(fmt.Errorf("list branches: %w", err))
	}
	live := make(map[string]struct{}, len(branches))
	for _, b := range branches {
		live[b] = struct{}{}
	}

	return &BranchContext{
		Branch:       branch,
		Commit:       commit,
		LiveBranches: live,
	}, nil
}
