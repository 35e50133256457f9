// Package index implements branch-aware indexing: deciding per file whether
// to embed new content points, flip visibility metadata on existing points,
// or do nothing, plus the reconciliation pass that keeps the content store
// converged with the filesystem and git state.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/codetrawl/codetrawl/internal/chunk"
	"github.com/codetrawl/codetrawl/internal/embed"
	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
	"github.com/codetrawl/codetrawl/internal/scanner"
	"github.com/codetrawl/codetrawl/internal/store"
)

// Action is the per-file decision the indexer makes.
type Action int

const (
	// ActionNoop: content already visible on the branch with matching hash.
	ActionNoop Action = iota
	// ActionEmbed: content not previously stored; create new points.
	ActionEmbed
	// ActionReveal: identical content stored but hidden on this branch.
	ActionReveal
	// ActionHide: file absent on the target branch; hide its points.
	ActionHide
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionEmbed:
		return "embed"
	case ActionReveal:
		return "reveal"
	case ActionHide:
		return "hide"
	default:
		return "noop"
	}
}

// BranchContext carries the git coordinates of an indexing run.
// A zero Branch means the project has no git metadata: points carry no
// commit and deletion is physical instead of visibility-based.
type BranchContext struct {
	Branch string
	Commit string

	// LiveBranches is the set of branch names that currently exist.
	// Used to prune stale names out of hidden_branches whenever a point's
	// visibility is rewritten, keeping the set bounded.
	LiveBranches map[string]struct{}
}

// GitAware reports whether branch metadata applies.
func (bc *BranchContext) GitAware() bool {
	return bc.Branch != ""
}

// FileStats counts the outcome of indexing one file.
type FileStats struct {
	Embedded  int // new points created
	Revealed  int // points un-hidden for this branch
	Hidden    int // points hidden on this branch
	Deleted   int // points physically removed (non-git mode)
	Unchanged int
}

// Add accumulates counts.
func (s *FileStats) Add(o FileStats) {
	s.Embedded += o.Embedded
	s.Revealed += o.Revealed
	s.Hidden += o.Hidden
	s.Deleted += o.Deleted
	s.Unchanged += o.Unchanged
}

// Indexer produces a correct, minimally-redundant set of content points for
// a (branch, commit) pair, reusing existing points whenever file content is
// unchanged from a previously indexed branch.
//
// Every error here is fatal to the indexing run. There is no fallback to
// non-git indexing: silently reprocessing content as unversioned would
// corrupt the branch-independence of point identities, which is worse than
// stopping.
type Indexer struct {
	store    store.ContentStore
	embedder embed.Embedder
	chunker  chunk.Chunker
}

// NewIndexer creates a branch-aware indexer.
func NewIndexer(cs store.ContentStore, e embed.Embedder, c chunk.Chunker) *Indexer {
	return &Indexer{store: cs, embedder: e, chunker: c}
}

// HashContent returns the content hash used in point identity.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

// IndexFile brings a single file's points in line with its current content
// on the target branch. It classifies each chunk as embed, reveal, or no-op
// and hides (or deletes, non-git) stale points left over from previous
// content at this path.
func (ix *Indexer) IndexFile(ctx context.Context, bc *BranchContext, file *scanner.FileInfo) (FileStats, error) {
	var stats FileStats

	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return stats, trawlerr.GitIndexingError(fmt.Errorf("read %s: %w", file.Path, err))
	}
	if scanner.IsBinaryContent(content) {
		return stats, nil
	}

	contentHash := HashContent(content)
	// Zero chunks (truncated or whitespace-only file) still run the stale
	// pass below so previously indexed content does not stay visible.
	chunks := ix.chunker.Chunk(string(content))

	existing, err := store.ScrollAll(ctx, ix.store, store.Filter{
		Type: store.PointTypeContent,
		Path: file.Path,
	})
	if err != nil {
		return stats, trawlerr.GitIndexingError(fmt.Errorf("scroll %s: %w", file.Path, err))
	}

	existingByID := make(map[string]*store.ContentPoint, len(existing))
	for _, p := range existing {
		existingByID[p.ID] = p
	}

	currentIDs := make(map[string]struct{}, len(chunks))
	var toEmbed []chunk.Chunk
	var toEmbedIDs []string
	var revealIDs []string
	var revealHidden [][]string

	for _, ch := range chunks {
		id := store.PointID(file.Path, ch.Index, contentHash)
		currentIDs[id] = struct{}{}

		p, ok := existingByID[id]
		if !ok {
			toEmbed = append(toEmbed, ch)
			toEmbedIDs = append(toEmbedIDs, id)
			continue
		}

		if !bc.GitAware() || p.VisibleOn(bc.Branch) {
			stats.Unchanged++
			continue
		}

		// Identical content already embedded, just clear this branch from
		// the hidden set. Prune dead branch names while we are rewriting it.
		hidden := pruneBranches(removeBranch(p.HiddenBranches, bc.Branch), bc.LiveBranches)
		revealIDs = append(revealIDs, id)
		revealHidden = append(revealHidden, hidden)
	}

	// Stale points: previous content at this path no longer present.
	var staleHideIDs []string
	var staleHideSets [][]string
	var staleDeleteIDs []string
	for id, p := range existingByID {
		if _, live := currentIDs[id]; live {
			continue
		}
		if !bc.GitAware() {
			staleDeleteIDs = append(staleDeleteIDs, id)
			continue
		}
		if p.VisibleOn(bc.Branch) {
			hidden := pruneBranches(addBranch(p.HiddenBranches, bc.Branch), bc.LiveBranches)
			staleHideIDs = append(staleHideIDs, id)
			staleHideSets = append(staleHideSets, hidden)
		}
	}

	// Apply mutations. Reveals and hides are payload-only operations; only
	// genuinely new content reaches the embedder.
	for i, id := range revealIDs {
		if err := ix.store.SetHiddenBranches(ctx, []string{id}, revealHidden[i]); err != nil {
			return stats, trawlerr.GitIndexingError(fmt.Errorf("reveal %s: %w", file.Path, err))
		}
		stats.Revealed++
	}

	for i, id := range staleHideIDs {
		if err := ix.store.SetHiddenBranches(ctx, []string{id}, staleHideSets[i]); err != nil {
			return stats, trawlerr.GitIndexingError(fmt.Errorf("hide stale %s: %w", file.Path, err))
		}
		stats.Hidden++
	}

	if len(staleDeleteIDs) > 0 {
		if err := ix.store.DeletePoints(ctx, staleDeleteIDs); err != nil {
			return stats, trawlerr.GitIndexingError(fmt.Errorf("delete stale %s: %w", file.Path, err))
		}
		stats.Deleted += len(staleDeleteIDs)
	}

	if len(toEmbed) > 0 {
		embedded, err := ix.embedChunks(ctx, bc, file, content, contentHash, toEmbed, toEmbedIDs)
		if err != nil {
			return stats, err
		}
		stats.Embedded += embedded
	}

	return stats, nil
}

// embedChunks embeds and upserts new content points for a file.
func (ix *Indexer) embedChunks(ctx context.Context, bc *BranchContext, file *scanner.FileInfo, content []byte, contentHash string, chunks []chunk.Chunk, ids []string) (int, error) {
	now := time.Now().UTC()

	points := make([]*store.ContentPoint, len(chunks))
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
		points[i] = &store.ContentPoint{
			ID:             ids[i],
			Type:           store.PointTypeContent,
			Path:           file.Path,
			Language:       file.Language,
			Content:        ch.Content,
			ChunkIndex:     ch.Index,
			TotalChunks:    ch.Total,
			LineStart:      ch.LineStart,
			LineEnd:        ch.LineEnd,
			FileSize:       int64(len(content)),
			EmbeddingModel: ix.embedder.ModelName(),
			GitCommit:      bc.Commit,
			HiddenBranches: nil,
			IndexedAt:      now,
		}
	}

	embedded := 0
	for start := 0; start < len(chunks); start += embed.DefaultBatchSize {
		end := start + embed.DefaultBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		vectors, err := ix.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return embedded, trawlerr.GitIndexingError(fmt.Errorf("embed %s: %w", file.Path, err))
		}
		if err := ix.store.Upsert(ctx, points[start:end], vectors); err != nil {
			return embedded, trawlerr.GitIndexingError(fmt.Errorf("upsert %s: %w", file.Path, err))
		}
		embedded += end - start
	}

	slog.Debug("embedded file",
		slog.String("path", file.Path),
		slog.String("hash", contentHash),
		slog.Int("chunks", embedded))
	return embedded, nil
}

// HideFile marks every point of a path hidden on the branch (git mode) or
// deletes the points outright (non-git mode). Used when a file disappears
// from the working tree.
func (ix *Indexer) HideFile(ctx context.Context, bc *BranchContext, path string) (FileStats, error) {
	var stats FileStats

	points, err := store.ScrollAll(ctx, ix.store, store.Filter{
		Type: store.PointTypeContent,
		Path: path,
	})
	if err != nil {
		return stats, trawlerr.GitIndexingError(fmt.Errorf("scroll %s: %w", path, err))
	}
	if len(points) == 0 {
		return stats, nil
	}

	if !bc.GitAware() {
		ids := make([]string, len(points))
		for i, p := range points {
			ids[i] = p.ID
		}
		if err := ix.store.DeletePoints(ctx, ids); err != nil {
			return stats, trawlerr.GitIndexingError(fmt.Errorf("delete %s: %w", path, err))
		}
		stats.Deleted = len(ids)
		return stats, nil
	}

	for _, p := range points {
		if !p.VisibleOn(bc.Branch) {
			continue
		}
		hidden := pruneBranches(addBranch(p.HiddenBranches, bc.Branch), bc.LiveBranches)
		if err := ix.store.SetHiddenBranches(ctx, []string{p.ID}, hidden); err != nil {
			return stats, trawlerr.GitIndexingError(fmt.Errorf("hide %s: %w", path, err))
		}
		stats.Hidden++
	}
	return stats, nil
}

// addBranch returns the hidden set with branch added (no duplicates).
func addBranch(hidden []string, branch string) []string {
	for _, b := range hidden {
		if b == branch {
			return hidden
		}
	}
	out := append(append([]string(nil), hidden...), branch)
	sort.Strings(out)
	return out
}

// removeBranch returns the hidden set without branch.
func removeBranch(hidden []string, branch string) []string {
	out := make([]string, 0, len(hidden))
	for _, b := range hidden {
		if b != branch {
			out = append(out, b)
		}
	}
	return out
}

// pruneBranches drops hidden entries naming branches that no longer exist.
// Pruning happens opportunistically on every visibility rewrite so the set
// stays bounded without a separate garbage-collection pass. A nil live set
// disables pruning.
func pruneBranches(hidden []string, live map[string]struct{}) []string {
	if live == nil {
		return hidden
	}
	out := make([]string, 0, len(hidden))
	for _, b := range hidden {
		if _, ok := live[b]; ok {
			out = append(out, b)
		}
	}
	return out
}
