// Package embed defines the capability interfaces that the model manager
// and retrieval engine use to produce embeddings and rerank scores, plus a
// deterministic in-process implementation of each for direct mode and tests.
package embed

import (
	"context"
	"math"
)

// Embedder produces fixed-dimension dense vectors for text.
type Embedder interface {
	// EmbedBatch generates one embedding per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension D this embedder produces.
	Dimensions() int

	// EstimatedMemoryMB is the static per-model memory estimate used by the
	// model manager's budget accounting.
	EstimatedMemoryMB() int

	// Available reports whether the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases any resources held by the embedder.
	Close() error
}

// Reranker scores (query, document) pairs jointly, more accurately than
// vector similarity but at higher per-call cost.
type Reranker interface {
	// ScorePairs returns one relevance score per document, in the same
	// order as docs.
	ScorePairs(ctx context.Context, query string, docs []string) ([]float32, error)

	// EstimatedMemoryMB is the static per-model memory estimate used by the
	// model manager's budget accounting.
	EstimatedMemoryMB() int

	// Close releases any resources held by the reranker.
	Close() error
}

// normalizeVector scales v to unit length; a zero vector is returned
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
