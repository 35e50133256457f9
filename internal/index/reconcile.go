package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/codetrawl/codetrawl/internal/chunk"
	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
	"github.com/codetrawl/codetrawl/internal/scanner"
	"github.com/codetrawl/codetrawl/internal/store"
)

// State keys persisted in the content store.
const (
	// StateKeyMode records whether the collection was built with git
	// metadata ("git") or without ("plain"). The two must never be mixed
	// within one collection.
	StateKeyMode = "index_mode"

	// StateKeyWatermarkPrefix prefixes the per-branch last-indexed commit.
	StateKeyWatermarkPrefix = "watermark:"
)

// Index modes.
const (
	ModeGit   = "git"
	ModePlain = "plain"
)

// maxDeleteVerifyAttempts bounds post-deletion verification. A deletion that
// cannot be verified after this many attempts is logged and treated as
// complete rather than retried indefinitely.
const maxDeleteVerifyAttempts = 3

// FileState classifies one candidate file during reconciliation.
type FileState int

const (
	// StateUpToDate: stored points match current content and visibility.
	StateUpToDate FileState = iota
	// StateMissing: indexable file never indexed.
	StateMissing
	// StateModified: content or visibility changed since last index.
	StateModified
	// StateDeleted: indexed path no longer present on disk.
	StateDeleted
)

// String returns the classification name.
func (s FileState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateModified:
		return "modified"
	case StateDeleted:
		return "deleted"
	default:
		return "up_to_date"
	}
}

// WorkItem is one file the indexer must touch.
type WorkItem struct {
	State FileState
	// File is set for missing/modified items.
	File *scanner.FileInfo
	// Path is set for deleted items (no FileInfo exists anymore).
	Path string
}

// ReconcileResult reports classification counts and the concrete work list.
type ReconcileResult struct {
	UpToDate int
	Missing  int
	Modified int
	Deleted  int
	Work     []WorkItem
}

// Total returns the number of candidate files considered.
func (r *ReconcileResult) Total() int {
	return r.UpToDate + r.Missing + r.Modified + r.Deleted
}

// Classify compares the candidate files against the store for the given
// branch context and produces the minimal work list. limit > 0 caps the
// number of non-up-to-date items returned (for partial/test runs).
//
// Running Classify twice with no intervening filesystem change classifies
// every file as up_to_date the second time, so the driver performs zero
// store mutations on the second run.
func Classify(ctx context.Context, cs store.ContentStore, bc *BranchContext, files []*scanner.FileInfo, chunker chunk.Chunker, limit int) (*ReconcileResult, error) {
	result := &ReconcileResult{}

	// Everything the store currently has indexed, grouped by path.
	indexed, err := store.ScrollAll(ctx, cs, store.Filter{Type: store.PointTypeContent})
	if err != nil {
		return nil, trawlerr.GitIndexingError(fmt.Errorf("scroll indexed points: %w", err))
	}

	byPath := make(map[string][]*store.ContentPoint)
	for _, p := range indexed {
		byPath[p.Path] = append(byPath[p.Path], p)
	}

	// The full on-disk set must be known before any limit truncates the
	// classify loop below, or still-present files would fall through to the
	// deleted pass.
	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		onDisk[f.Path] = struct{}{}
	}

	for _, f := range files {
		state, err := classifyFile(bc, f, byPath[f.Path], chunker)
		if err != nil {
			return nil, err
		}

		switch state {
		case StateUpToDate:
			result.UpToDate++
		case StateMissing:
			result.Missing++
			result.Work = append(result.Work, WorkItem{State: StateMissing, File: f})
		case StateModified:
			result.Modified++
			result.Work = append(result.Work, WorkItem{State: StateModified, File: f})
		}

		if limit > 0 && len(result.Work) >= limit {
			break
		}
	}

	// Indexed paths that are gone from disk (or excluded by ignore rules).
	for path, points := range byPath {
		if _, present := onDisk[path]; present {
			continue
		}
		if bc.GitAware() && !anyVisibleOn(points, bc.Branch) {
			// Already hidden on this branch; nothing to do.
			result.UpToDate++
			continue
		}
		result.Deleted++
		result.Work = append(result.Work, WorkItem{State: StateDeleted, Path: path})
		if limit > 0 && len(result.Work) >= limit {
			break
		}
	}

	return result, nil
}

// classifyFile decides the state of one on-disk file.
//
// Identity is content-addressed: the file's chunk point IDs are recomputed
// from its current content and compared against the stored set. Matching
// IDs that are all visible on the branch mean up_to_date; matching IDs with
// any hidden mean a branch transition (modified: reveal path); anything
// else means modified content.
func classifyFile(bc *BranchContext, f *scanner.FileInfo, points []*store.ContentPoint, chunker chunk.Chunker) (FileState, error) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		// File vanished between scan and classify; the next run sees it
		// as deleted.
		return StateUpToDate, nil
	}

	contentHash := HashContent(content)
	chunks := chunker.Chunk(string(content))
	if len(chunks) == 0 {
		// The file produces nothing indexable anymore (truncated or
		// whitespace-only). Points that are still visible here are stale.
		if len(points) == 0 {
			return StateUpToDate, nil
		}
		if bc.GitAware() && !anyVisibleOn(points, bc.Branch) {
			return StateUpToDate, nil
		}
		return StateModified, nil
	}

	if len(points) == 0 {
		return StateMissing, nil
	}

	existingIDs := make(map[string]*store.ContentPoint, len(points))
	for _, p := range points {
		existingIDs[p.ID] = p
	}

	currentIDs := make(map[string]struct{}, len(chunks))
	visibleCurrent := 0
	for _, ch := range chunks {
		id := store.PointID(f.Path, ch.Index, contentHash)
		currentIDs[id] = struct{}{}

		p, ok := existingIDs[id]
		if !ok {
			return StateModified, nil
		}
		if !bc.GitAware() || p.VisibleOn(bc.Branch) {
			visibleCurrent++
		}
	}

	if visibleCurrent < len(chunks) {
		// Same content, hidden on this branch: reveal needed.
		return StateModified, nil
	}

	// Stale extra points still visible on this branch also require work.
	if bc.GitAware() {
		for id, p := range existingIDs {
			if _, ok := currentIDs[id]; !ok && p.VisibleOn(bc.Branch) {
				return StateModified, nil
			}
		}
	} else if len(existingIDs) != len(chunks) {
		return StateModified, nil
	}

	return StateUpToDate, nil
}

// anyVisibleOn reports whether any point is visible on the branch.
func anyVisibleOn(points []*store.ContentPoint, branch string) bool {
	for _, p := range points {
		if p.VisibleOn(branch) {
			return true
		}
	}
	return false
}

// VerifyDeletion confirms a path no longer resolves visible points on the
// branch. Verification is bounded: after maxDeleteVerifyAttempts failed
// checks the deletion is logged as a warning and treated as complete. It
// must never loop indefinitely on a slow or inconsistent store.
func VerifyDeletion(ctx context.Context, cs store.ContentStore, bc *BranchContext, path string) {
	for attempt := 1; attempt <= maxDeleteVerifyAttempts; attempt++ {
		f := store.Filter{Type: store.PointTypeContent, Path: path}
		if bc.GitAware() {
			f.VisibleOn = bc.Branch
		}

		points, _, err := cs.Scroll(ctx, f, 1, "")
		if err == nil && len(points) == 0 {
			return
		}
		if err != nil {
			slog.Debug("deletion verification scroll failed",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
	}

	slog.Warn("deletion could not be verified, treating as complete",
		slog.String("path", path),
		slog.Int("attempts", maxDeleteVerifyAttempts))
}

// WatermarkKey returns the state key holding the last fully indexed commit
// for a branch.
func WatermarkKey(branch string) string {
	return StateKeyWatermarkPrefix + branch
}

// CheckMode enforces that a collection is used in a single mode. The first
// run records the mode; later runs fail fast on mismatch instead of
// silently mixing git-aware and plain points in one collection.
func CheckMode(ctx context.Context, cs store.ContentStore, gitAware bool) error {
	want := ModePlain
	if gitAware {
		want = ModeGit
	}

	got, err := cs.GetState(ctx, StateKeyMode)
	if err != nil {
		return trawlerr.GitIndexingError(fmt.Errorf("read index mode: %w", err))
	}
	if got == "" {
		if err := cs.SetState(ctx, StateKeyMode, want); err != nil {
			return trawlerr.GitIndexingError(fmt.Errorf("record index mode: %w", err))
		}
		return nil
	}
	if got != want {
		return trawlerr.GitIndexingError(
			fmt.Errorf("collection was indexed in %s mode but current project is %s mode; reindex required", got, want))
	}
	return nil
}
