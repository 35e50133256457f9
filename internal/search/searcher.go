package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/codetrawl/codetrawl/internal/embed"
	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
	"github.com/codetrawl/codetrawl/internal/gittopo"
	"github.com/codetrawl/codetrawl/internal/store"
)

// DefaultLimit is the result count used when the caller passes zero.
const DefaultLimit = 10

// Options narrow a query beyond the branch visibility filter.
type Options struct {
	// Limit caps the number of results. Zero means DefaultLimit.
	Limit int

	// Language restricts results to a detected language, e.g. "go".
	Language string

	// PathPrefix restricts results to paths under a directory.
	PathPrefix string
}

// Result is a search hit with its similarity score.
type Result struct {
	Path       string
	Language   string
	Content    string
	LineStart  int
	LineEnd    int
	ChunkIndex int
	Score      float32
}

// Searcher embeds a query and runs it against the store, scoped to the
// branch currently checked out at the repository root.
type Searcher struct {
	store    store.ContentStore
	embedder embed.Embedder
	topo     gittopo.Topology
	filter   *BranchFilter
}

// NewSearcher wires a searcher. topo may be nil for plain-mode indexes.
func NewSearcher(cs store.ContentStore, emb embed.Embedder, topo gittopo.Topology) *Searcher {
	return &Searcher{
		store:    cs,
		embedder: emb,
		topo:     topo,
		filter:   NewBranchFilter(topo),
	}
}

// Search runs a semantic query. The branch scope is resolved from the
// repository at call time so results always track the checked-out branch.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, trawlerr.New(trawlerr.ErrCodeQueryEmpty, "search query is empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	start := time.Now()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeEmbeddingFailed, "embedding query failed")
	}

	branch := s.resolveBranch(ctx)
	f := s.filter.StoreFilter(branch)

	// Over-fetch so the secondary filter and post-filters have slack.
	fetch := limit * 3
	if fetch < 30 {
		fetch = 30
	}
	scored, err := s.store.Search(ctx, vector, f, fetch)
	if err != nil {
		return nil, err
	}

	scored = s.filter.FilterResults(ctx, scored)

	results := make([]Result, 0, limit)
	for _, sp := range scored {
		if opts.Language != "" && sp.Point.Language != opts.Language {
			continue
		}
		if opts.PathPrefix != "" && !strings.HasPrefix(sp.Point.Path, opts.PathPrefix) {
			continue
		}
		results = append(results, Result{
			Path:       sp.Point.Path,
			Language:   sp.Point.Language,
			Content:    sp.Point.Content,
			LineStart:  sp.Point.LineStart,
			LineEnd:    sp.Point.LineEnd,
			ChunkIndex: sp.Point.ChunkIndex,
			Score:      sp.Score,
		})
		if len(results) == limit {
			break
		}
	}

	slog.Debug("search complete",
		slog.String("branch", branch),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

func (s *Searcher) resolveBranch(ctx context.Context) string {
	if s.topo == nil || !s.topo.IsRepo(ctx) {
		return ""
	}
	branch, err := s.topo.CurrentBranch(ctx)
	if err != nil {
		slog.Warn("could not resolve current branch, searching unscoped",
			slog.String("error", err.Error()))
		return ""
	}
	return branch
}
