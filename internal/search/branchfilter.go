// Package search performs similarity queries against the content store,
// constrained to the points visible on the active git branch.
package search

import (
	"context"
	"log/slog"

	"github.com/codetrawl/codetrawl/internal/gittopo"
	"github.com/codetrawl/codetrawl/internal/store"
)

// BranchFilter builds the store-level visibility filter for a branch and
// applies a defensive secondary filter over returned results.
//
// The two layers must converge to the same visible set. The store filter is
// authoritative; the in-memory pass is a safety net for records written by
// content sources without git metadata and for records whose recorded commit
// is no longer reachable from HEAD.
type BranchFilter struct {
	topo gittopo.Topology
}

// NewBranchFilter creates a filter backed by the given topology reader.
// A nil topology disables the secondary pass (everything is included).
func NewBranchFilter(topo gittopo.Topology) *BranchFilter {
	return &BranchFilter{topo: topo}
}

// StoreFilter returns the primary store-level predicate: content points not
// hidden on the branch. An empty branch matches all content points.
func (bf *BranchFilter) StoreFilter(branch string) store.Filter {
	f := store.Filter{Type: store.PointTypeContent}
	if branch != "" {
		f.VisibleOn = branch
	}
	return f
}

// FilterResults applies the secondary in-memory filter. For each candidate:
//
//   - no git metadata recorded: include (pure filesystem content);
//   - recorded path tracked on the current branch: include;
//   - recorded commit an ancestor of HEAD: include;
//   - otherwise: exclude.
//
// Any git failure degrades to including everything: over-inclusion is less
// harmful than an outage on the read path.
func (bf *BranchFilter) FilterResults(ctx context.Context, results []*store.ScoredPoint) []*store.ScoredPoint {
	if bf.topo == nil || len(results) == 0 {
		return results
	}
	if !bf.topo.IsRepo(ctx) {
		return results
	}

	head, err := bf.topo.CurrentCommit(ctx)
	if err != nil {
		bf.logDegraded("resolve HEAD", err)
		return results
	}
	tracked, err := bf.topo.LsTree(ctx, head)
	if err != nil {
		bf.logDegraded("list tracked files", err)
		return results
	}

	filtered := make([]*store.ScoredPoint, 0, len(results))
	for _, r := range results {
		if r.Point.GitCommit == "" {
			filtered = append(filtered, r)
			continue
		}
		if _, ok := tracked[r.Point.Path]; ok {
			filtered = append(filtered, r)
			continue
		}

		ancestor, err := bf.topo.IsAncestor(ctx, r.Point.GitCommit, head)
		if err != nil {
			bf.logDegraded("ancestry check", err)
			// Keep the candidate; exclusion on error would hide valid
			// results.
			filtered = append(filtered, r)
			continue
		}
		if ancestor {
			filtered = append(filtered, r)
			continue
		}

		slog.Debug("dropping result from unreachable commit",
			slog.String("path", r.Point.Path),
			slog.String("commit", r.Point.GitCommit))
	}
	return filtered
}

func (bf *BranchFilter) logDegraded(op string, err error) {
	level := slog.LevelWarn
	if gittopo.IsBenignUnavailable(err) {
		level = slog.LevelDebug
	}
	slog.Log(context.Background(), level, "branch filter degraded, including all results",
		slog.String("op", op),
		slog.String("error", err.Error()))
}
