package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

// QdrantStore implements ContentStore backed by a Qdrant collection.
// Transient transport failures are retried with bounded backoff; everything
// else surfaces immediately.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	vectorSize int
	retry      trawlerr.RetryConfig
}

// NewQdrantStore connects to a Qdrant endpoint. urlStr is the HTTP URL
// (e.g. "http://localhost:6333"); the gRPC port is derived from it.
func NewQdrantStore(urlStr, collection string, vectorSize int) (*QdrantStore, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid store URL %q", urlStr))
	}

	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}

	// gRPC listens one above the HTTP port by convention.
	port := 6334
	if parsed.Port() != "" {
		if httpPort, err := strconv.Atoi(parsed.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeStoreUnavailable,
			"failed to create qdrant client")
	}

	return &QdrantStore{
		client:     client,
		collection: collection,
		vectorSize: vectorSize,
		retry:      trawlerr.DefaultRetryConfig(),
	}, nil
}

// wrapStoreErr classifies a qdrant client error. Transient transport
// conditions map to retryable codes so Retry re-attempts them; anything else
// is a plain store I/O error.
func wrapStoreErr(err error, msg string) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.Aborted, codes.ResourceExhausted:
		return trawlerr.Wrap(err, trawlerr.ErrCodeStoreUnavailable, msg)
	case codes.DeadlineExceeded:
		return trawlerr.Wrap(err, trawlerr.ErrCodeStoreTimeout, msg)
	default:
		return trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO, msg)
	}
}

// EnsureCollection creates the collection if missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO, "failed to check collection")
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO, "failed to create collection")
	}
	s.vectorSize = vectorSize
	return nil
}

// CollectionExists reports whether the collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO, "failed to check collection")
	}
	return exists, nil
}

// CollectionInfo returns collection statistics.
func (s *QdrantStore) CollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO, "failed to get collection info")
	}
	return &CollectionInfo{
		Name:       s.collection,
		PointCount: info.GetPointsCount(),
		VectorSize: s.vectorSize,
	}, nil
}

// Upsert writes points with their vectors.
func (s *QdrantStore) Upsert(ctx context.Context, points []*ContentPoint, vectors [][]float32) error {
	if len(points) == 0 {
		return nil
	}
	if len(points) != len(vectors) {
		return trawlerr.ValidationError(
			fmt.Sprintf("points and vectors length mismatch: %d vs %d", len(points), len(vectors)), nil)
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for i, p := range points {
		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payloadFromPoint(p)),
		})
	}

	return trawlerr.Retry(ctx, s.retry, func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrantPoints,
		})
		if err != nil {
			return wrapStoreErr(err, "failed to upsert points")
		}
		return nil
	})
}

// Scroll pages through points matching the filter.
func (s *QdrantStore) Scroll(ctx context.Context, f Filter, limit int, offset string) ([]*ContentPoint, string, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         buildFilter(f),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if offset != "" {
		req.Offset = qdrant.NewID(offset)
	}

	var resp *qdrant.ScrollResponse
	err := trawlerr.Retry(ctx, s.retry, func() error {
		var scrollErr error
		resp, scrollErr = s.client.GetPointsClient().Scroll(ctx, req)
		if scrollErr != nil {
			return wrapStoreErr(scrollErr, "failed to scroll points")
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	points := make([]*ContentPoint, 0, len(resp.GetResult()))
	for _, rp := range resp.GetResult() {
		points = append(points, pointFromPayload(rp.GetId().GetUuid(), rp.GetPayload()))
	}

	next := ""
	if off := resp.GetNextPageOffset(); off != nil {
		next = off.GetUuid()
	}
	return points, next, nil
}

// Search performs vector similarity search constrained by the filter.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, f Filter, limit int) ([]*ScoredPoint, error) {
	var results []*qdrant.ScoredPoint
	err := trawlerr.Retry(ctx, s.retry, func() error {
		var queryErr error
		results, queryErr = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQuery(vector...),
			Filter:         buildFilter(f),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if queryErr != nil {
			return wrapStoreErr(queryErr, "failed to search points")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	scored := make([]*ScoredPoint, 0, len(results))
	for _, r := range results {
		scored = append(scored, &ScoredPoint{
			Point: pointFromPayload(r.GetId().GetUuid(), r.GetPayload()),
			Score: r.GetScore(),
		})
	}
	return scored, nil
}

// DeletePoints removes points by ID.
func (s *QdrantStore) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	return trawlerr.Retry(ctx, s.retry, func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelector(pointIDs...),
		})
		if err != nil {
			return wrapStoreErr(err, "failed to delete points")
		}
		return nil
	})
}

// SetHiddenBranches overwrites hidden_branches on the given points without
// touching vectors. This is the payload-only path that makes branch
// transitions metadata operations instead of re-embedding.
func (s *QdrantStore) SetHiddenBranches(ctx context.Context, ids []string, hidden []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	return trawlerr.Retry(ctx, s.retry, func() error {
		_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Payload: qdrant.NewValueMap(map[string]any{
				"hidden_branches": toAnySlice(hidden),
			}),
			PointsSelector: qdrant.NewPointsSelector(pointIDs...),
		})
		if err != nil {
			return wrapStoreErr(err, "failed to set hidden_branches")
		}
		return nil
	})
}

// GetState reads a state record; missing keys return ("", nil).
func (s *QdrantStore) GetState(ctx context.Context, key string) (string, error) {
	var points []*qdrant.RetrievedPoint
	err := trawlerr.Retry(ctx, s.retry, func() error {
		var getErr error
		points, getErr = s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.collection,
			Ids:            []*qdrant.PointId{qdrant.NewID(StateID(key))},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if getErr != nil {
			return wrapStoreErr(getErr, "failed to get state point")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(points) == 0 {
		return "", nil
	}
	return points[0].GetPayload()["value"].GetStringValue(), nil
}

// SetState writes a state record as a zero-vector point.
func (s *QdrantStore) SetState(ctx context.Context, key, value string) error {
	return trawlerr.Retry(ctx, s.retry, func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points: []*qdrant.PointStruct{{
				Id:      qdrant.NewID(StateID(key)),
				Vectors: qdrant.NewVectors(make([]float32, s.vectorSize)...),
				Payload: qdrant.NewValueMap(map[string]any{
					"type":  PointTypeState,
					"key":   key,
					"value": value,
				}),
			}},
		})
		if err != nil {
			return wrapStoreErr(err, "failed to set state point")
		}
		return nil
	})
}

// Close releases the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// buildFilter converts a Filter into qdrant payload conditions.
// A match on an array field ("hidden_branches") holds when the array
// contains the keyword, which gives the visible/hidden semantics directly.
func buildFilter(f Filter) *qdrant.Filter {
	var must, mustNot []*qdrant.Condition

	if f.Type != "" {
		must = append(must, qdrant.NewMatch("type", f.Type))
	}
	if f.Path != "" {
		must = append(must, qdrant.NewMatch("path", f.Path))
	}
	if f.HiddenOn != "" {
		must = append(must, qdrant.NewMatch("hidden_branches", f.HiddenOn))
	}
	if f.VisibleOn != "" {
		mustNot = append(mustNot, qdrant.NewMatch("hidden_branches", f.VisibleOn))
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}
}

// payloadFromPoint converts a ContentPoint into a payload map.
func payloadFromPoint(p *ContentPoint) map[string]any {
	return map[string]any{
		"type":            p.Type,
		"path":            p.Path,
		"language":        p.Language,
		"content":         p.Content,
		"chunk_index":     int64(p.ChunkIndex),
		"total_chunks":    int64(p.TotalChunks),
		"line_start":      int64(p.LineStart),
		"line_end":        int64(p.LineEnd),
		"file_size":       p.FileSize,
		"embedding_model": p.EmbeddingModel,
		"git_commit":      p.GitCommit,
		"hidden_branches": toAnySlice(p.HiddenBranches),
		"indexed_at":      p.IndexedAt.UTC().Format(time.RFC3339),
	}
}

// pointFromPayload reconstructs a ContentPoint from a payload map.
func pointFromPayload(id string, payload map[string]*qdrant.Value) *ContentPoint {
	p := &ContentPoint{
		ID:             id,
		Type:           payload["type"].GetStringValue(),
		Path:           payload["path"].GetStringValue(),
		Language:       payload["language"].GetStringValue(),
		Content:        payload["content"].GetStringValue(),
		ChunkIndex:     int(payload["chunk_index"].GetIntegerValue()),
		TotalChunks:    int(payload["total_chunks"].GetIntegerValue()),
		LineStart:      int(payload["line_start"].GetIntegerValue()),
		LineEnd:        int(payload["line_end"].GetIntegerValue()),
		FileSize:       payload["file_size"].GetIntegerValue(),
		EmbeddingModel: payload["embedding_model"].GetStringValue(),
		GitCommit:      payload["git_commit"].GetStringValue(),
	}

	if list := payload["hidden_branches"].GetListValue(); list != nil {
		for _, v := range list.GetValues() {
			p.HiddenBranches = append(p.HiddenBranches, v.GetStringValue())
		}
	}

	if ts := payload["indexed_at"].GetStringValue(); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			p.IndexedAt = parsed
		}
	}

	return p
}

// toAnySlice converts []string to []any for payload value construction.
func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
