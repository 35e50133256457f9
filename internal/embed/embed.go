// Package embed provides the embedding capability used by the indexer and
// searcher. Provider HTTP clients are external collaborators; this package
// defines the interface plus a local deterministic embedder and an LRU
// caching wrapper.
package embed

import (
	"context"
	"math"
)

// Batch limits.
const (
	// MaxBatchSize caps a single EmbedBatch call.
	MaxBatchSize = 256

	// DefaultBatchSize is the batch size the index runner uses.
	DefaultBatchSize = 32
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier recorded on content points.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
