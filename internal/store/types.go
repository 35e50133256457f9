// Package store provides the content store capability: an abstract
// vector + payload store holding one point per indexed code chunk.
//
// Two implementations exist: QdrantStore (gRPC, production) and MemoryStore
// (in-process HNSW, offline mode and tests). Callers depend only on the
// ContentStore interface and never assume a wire protocol.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PointType discriminates payload records in the collection.
const (
	// PointTypeContent marks an embedded code chunk.
	PointTypeContent = "content"
	// PointTypeState marks a key/value state record (watermarks etc.).
	PointTypeState = "state"
)

// pointNamespace is the UUIDv5 namespace for deterministic point IDs.
var pointNamespace = uuid.MustParse("8f4e9d24-6c31-4a5e-9b0a-2f1d3c7e5a90")

// ContentPoint is one chunk of code content as stored in the content store.
//
// A content point's identity is branch-independent: the same
// (path, chunk_index, content hash) triple always maps to the same ID, so
// branches sharing identical file content share one point and differ only
// in HiddenBranches.
type ContentPoint struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Path           string    `json:"path"`
	Language       string    `json:"language"`
	Content        string    `json:"content"`
	ChunkIndex     int       `json:"chunk_index"`
	TotalChunks    int       `json:"total_chunks"`
	LineStart      int       `json:"line_start"` // 1-indexed
	LineEnd        int       `json:"line_end"`   // inclusive
	FileSize       int64     `json:"file_size"`
	EmbeddingModel string    `json:"embedding_model"`
	GitCommit      string    `json:"git_commit"`
	HiddenBranches []string  `json:"hidden_branches"`
	IndexedAt      time.Time `json:"indexed_at"`
}

// PointID derives the deterministic, branch-independent point ID for a
// chunk. Qdrant point IDs must be UUIDs, so this is a UUIDv5 over the
// identity triple.
func PointID(path string, chunkIndex int, contentHash string) string {
	name := fmt.Sprintf("%s:%d:%s", path, chunkIndex, contentHash)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

// StateID derives the deterministic point ID for a state record.
func StateID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte("state:"+key)).String()
}

// VisibleOn reports whether the point is visible on a branch.
// A point is visible on branch b iff b is not in HiddenBranches.
func (p *ContentPoint) VisibleOn(branch string) bool {
	for _, b := range p.HiddenBranches {
		if b == branch {
			return false
		}
	}
	return true
}

// Filter selects points by payload predicates. Zero fields are ignored.
type Filter struct {
	// Type matches the payload type discriminator exactly.
	Type string

	// Path matches the repo-relative file path exactly.
	Path string

	// VisibleOn requires the branch NOT to be in hidden_branches.
	VisibleOn string

	// HiddenOn requires the branch to be in hidden_branches.
	HiddenOn string
}

// ScoredPoint is a similarity search result.
type ScoredPoint struct {
	Point *ContentPoint
	Score float32
}

// CollectionInfo summarizes a collection for status reporting.
type CollectionInfo struct {
	Name       string
	PointCount uint64
	VectorSize int
}

// ContentStore is the content store capability.
//
// Upserts are last-writer-wins per point ID; this package adds no locking
// around store mutations.
type ContentStore interface {
	// EnsureCollection creates the collection if missing.
	EnsureCollection(ctx context.Context, vectorSize int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context) (bool, error)

	// CollectionInfo returns collection statistics.
	CollectionInfo(ctx context.Context) (*CollectionInfo, error)

	// Upsert writes points with their vectors. Point i pairs with vector i.
	Upsert(ctx context.Context, points []*ContentPoint, vectors [][]float32) error

	// Scroll pages through points matching the filter. offset is the opaque
	// continuation token from a previous call ("" starts from the top);
	// the returned token is "" when exhausted.
	Scroll(ctx context.Context, f Filter, limit int, offset string) ([]*ContentPoint, string, error)

	// Search performs vector similarity search constrained by the filter.
	Search(ctx context.Context, vector []float32, f Filter, limit int) ([]*ScoredPoint, error)

	// DeletePoints removes points by ID.
	DeletePoints(ctx context.Context, ids []string) error

	// SetHiddenBranches overwrites the hidden_branches payload field on the
	// given points without touching vectors or other payload fields.
	SetHiddenBranches(ctx context.Context, ids []string, hidden []string) error

	// GetState reads a state record; missing keys return ("", nil).
	GetState(ctx context.Context, key string) (string, error)

	// SetState writes a state record.
	SetState(ctx context.Context, key, value string) error

	// Close releases client resources.
	Close() error
}

// ScrollAll drains every point matching the filter. Convenience for
// reconciliation passes that need the complete indexed set.
func ScrollAll(ctx context.Context, s ContentStore, f Filter) ([]*ContentPoint, error) {
	const pageSize = 512

	var all []*ContentPoint
	offset := ""
	for {
		points, next, err := s.Scroll(ctx, f, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, points...)
		if next == "" {
			return all, nil
		}
		offset = next
	}
}
