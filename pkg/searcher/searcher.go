// Package searcher presents a narrower, documented surface over
// internal/engine for code embedding fastsearchd as a library rather than
// talking to it over the daemon's RPC socket. It complements pkg/indexer:
// indexer writes, searcher reads, both over the same on-disk store.
package searcher

import (
	"context"
	"fmt"

	"github.com/fastsearch/fastsearchd/internal/engine"
	"github.com/fastsearch/fastsearchd/internal/store"
)

// Searcher runs ranked queries over one store.Store, with BM25, vector, and
// RRF-fused hybrid modes (optionally cross-encoder reranked).
//
// Implementations must be safe for concurrent use; Engine already is.
type Searcher interface {
	// Search executes query in the given mode and returns up to limit
	// ranked results. An empty mode defaults to engine.ModeHybrid, matching
	// internal/rpc.DaemonBackend.Search's own default.
	Search(ctx context.Context, query string, mode engine.Mode, limit int) ([]engine.Result, error)

	// Close releases the underlying store's resources.
	Close() error
}

type engineSearcher struct {
	store *store.Store
	eng   *engine.Engine
}

// Open opens the store at path (embedding dimension dim) and wraps it with
// an Engine driven by models, returning a Searcher ready for queries.
func Open(path string, dim int, models engine.ModelProvider) (Searcher, error) {
	s, err := store.Open(path, dim)
	if err != nil {
		return nil, fmt.Errorf("opening store for search: %w", err)
	}
	return &engineSearcher{store: s, eng: engine.New(s, models)}, nil
}

func (s *engineSearcher) Search(ctx context.Context, query string, mode engine.Mode, limit int) ([]engine.Result, error) {
	if mode == "" {
		mode = engine.ModeHybrid
	}
	return s.eng.Search(ctx, engine.Query{Text: query, Mode: mode, Limit: limit})
}

func (s *engineSearcher) Close() error {
	return s.store.Close()
}
