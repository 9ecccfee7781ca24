// Package engine implements the hybrid retrieval engine: BM25, vector, and
// RRF-fused hybrid search over a store.Store, with optional cross-encoder
// reranking via the model manager.
package engine

import (
	"context"
	"time"

	"github.com/fastsearch/fastsearchd/internal/embed"
)

// Mode selects which scorer(s) a search uses.
type Mode string

const (
	ModeBM25           Mode = "bm25"
	ModeVector         Mode = "vector"
	ModeHybrid         Mode = "hybrid"
	ModeHybridReranked Mode = "hybrid_reranked"
)

// rrfK is the RRF smoothing constant from spec.md's fusion formula.
const rrfK = 60.0

// Query describes a single search request.
type Query struct {
	Text        string
	Mode        Mode
	Limit       int
	RerankTopK  int
	BM25Weight  float64
	VectorWeight float64
}

// Result is one ranked chunk, carrying every optional per-mode field the
// result shape in spec.md §4.D defines. Nil means the field does not apply
// to the mode that produced this result.
type Result struct {
	ID         int64
	Source     string
	ChunkIndex int
	Content    string
	Metadata   map[string]string
	CreatedAt  time.Time

	Rank int

	BM25Rank    *int
	VecRank     *int
	RRFScore    *float64
	RerankScore *float32
}

// ModelProvider is the slice of the model manager the engine needs: a way
// to borrow an embedder and reranker for the lifetime of a single request.
// Engine depends on this interface rather than *manager.Manager directly so
// it can be tested with a fake and so manager's richer lifecycle API stays
// out of the engine's concerns.
//
// The returned release func must be called (typically deferred) once the
// caller is done with the resource; it marks the slot eligible for
// eviction again (spec.md §5: "acquire increments a per-slot in-use count
// that blocks eviction of that slot until released").
type ModelProvider interface {
	AcquireEmbedder(ctx context.Context) (embed.Embedder, func(), error)
	AcquireReranker(ctx context.Context) (embed.Reranker, func(), error)
}

func defaultWeight(w float64) float64 {
	if w <= 0 {
		return 1.0
	}
	return w
}
