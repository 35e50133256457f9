package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// MemoryStore implements ContentStore in process memory with an HNSW graph
// for similarity search. Used for offline mode and as the test double; the
// semantics match QdrantStore.
type MemoryStore struct {
	mu         sync.RWMutex
	vectorSize int
	created    bool
	points     map[string]*ContentPoint
	vectors    map[string][]float32
	state      map[string]string
	closed     bool

	// The graph is keyed by a monotonically increasing surrogate key, never
	// the point ID. Re-upserting an ID inserts a fresh node and orphans the
	// old one (graph.Add panics on duplicate keys, and Delete has ordering
	// constraints), so the id<->key maps are authoritative and search skips
	// orphaned nodes.
	graph   *hnsw.Graph[uint64]
	nextKey uint64
	idToKey map[string]uint64
	keyToID map[uint64]string

	// Mutations counts writes (upserts, deletes, payload updates).
	// Tests use it to assert reconciliation idempotence.
	Mutations int
}

// NewMemoryStore creates an empty in-memory content store.
func NewMemoryStore(vectorSize int) *MemoryStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64

	return &MemoryStore{
		vectorSize: vectorSize,
		graph:      graph,
		nextKey:    1,
		idToKey:    make(map[string]uint64),
		keyToID:    make(map[uint64]string),
		points:     make(map[string]*ContentPoint),
		vectors:    make(map[string][]float32),
		state:      make(map[string]string),
	}
}

// EnsureCollection creates the collection if missing.
func (s *MemoryStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		s.vectorSize = vectorSize
		s.created = true
	}
	return nil
}

// CollectionExists reports whether the collection exists.
func (s *MemoryStore) CollectionExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created || len(s.points) > 0, nil
}

// CollectionInfo returns collection statistics.
func (s *MemoryStore) CollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &CollectionInfo{
		Name:       "memory",
		PointCount: uint64(len(s.points)),
		VectorSize: s.vectorSize,
	}, nil
}

// Upsert writes points with their vectors.
func (s *MemoryStore) Upsert(ctx context.Context, points []*ContentPoint, vectors [][]float32) error {
	if len(points) == 0 {
		return nil
	}
	if len(points) != len(vectors) {
		return fmt.Errorf("points and vectors length mismatch: %d vs %d", len(points), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for i, p := range points {
		cp := clonePoint(p)
		s.points[cp.ID] = cp

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		s.vectors[cp.ID] = vec

		// Last-writer-wins per ID: orphan the old graph node and insert a
		// new one under a fresh key.
		if oldKey, ok := s.idToKey[cp.ID]; ok {
			delete(s.keyToID, oldKey)
		}
		key := s.nextKey
		s.nextKey++
		s.idToKey[cp.ID] = key
		s.keyToID[key] = cp.ID
		s.graph.Add(hnsw.MakeNode(key, vec))
	}
	s.Mutations++
	return nil
}

// Scroll pages through points matching the filter in ID order.
func (s *MemoryStore) Scroll(ctx context.Context, f Filter, limit int, offset string) ([]*ContentPoint, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.points))
	for id, p := range s.points {
		if matchesFilter(p, f) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	start := 0
	if offset != "" {
		start = sort.SearchStrings(ids, offset)
	}

	var out []*ContentPoint
	next := ""
	for i := start; i < len(ids); i++ {
		if len(out) == limit {
			next = ids[i]
			break
		}
		out = append(out, clonePoint(s.points[ids[i]]))
	}
	return out, next, nil
}

// Search performs vector similarity search constrained by the filter.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, f Filter, limit int) ([]*ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return nil, nil
	}

	// Over-fetch so that orphaned graph nodes and filtered-out points do
	// not starve the result set.
	k := limit * 4
	if k < 32 {
		k = 32
	}

	neighbors := s.graph.Search(vector, k)

	var results []*ScoredPoint
	for _, n := range neighbors {
		id, live := s.keyToID[n.Key]
		if !live {
			continue
		}
		p, ok := s.points[id]
		if !ok || !matchesFilter(p, f) {
			continue
		}
		results = append(results, &ScoredPoint{
			Point: clonePoint(p),
			Score: cosineSimilarity(vector, s.vectors[id]),
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// DeletePoints removes points by ID. Graph nodes are orphaned rather than
// removed: the id<->key maps are authoritative and search skips dead nodes.
func (s *MemoryStore) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if key, ok := s.idToKey[id]; ok {
			delete(s.keyToID, key)
			delete(s.idToKey, id)
		}
		delete(s.points, id)
		delete(s.vectors, id)
	}
	s.Mutations++
	return nil
}

// SetHiddenBranches overwrites hidden_branches on the given points.
func (s *MemoryStore) SetHiddenBranches(ctx context.Context, ids []string, hidden []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		p, ok := s.points[id]
		if !ok {
			continue
		}
		p.HiddenBranches = append([]string(nil), hidden...)
	}
	s.Mutations++
	return nil
}

// GetState reads a state record; missing keys return ("", nil).
func (s *MemoryStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key], nil
}

// SetState writes a state record.
func (s *MemoryStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// matchesFilter applies Filter predicates to a point.
func matchesFilter(p *ContentPoint, f Filter) bool {
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.Path != "" && p.Path != f.Path {
		return false
	}
	if f.VisibleOn != "" && !p.VisibleOn(f.VisibleOn) {
		return false
	}
	if f.HiddenOn != "" && p.VisibleOn(f.HiddenOn) {
		return false
	}
	return true
}

// clonePoint copies a point so callers never share internal state.
func clonePoint(p *ContentPoint) *ContentPoint {
	cp := *p
	cp.HiddenBranches = append([]string(nil), p.HiddenBranches...)
	return &cp
}

// cosineSimilarity computes similarity of two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
