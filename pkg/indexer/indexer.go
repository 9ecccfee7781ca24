// Package indexer presents a narrower, documented surface over
// internal/store for code embedding fastsearchd as a library rather than
// talking to it over the daemon's RPC socket (spec.md §9's direct-mode
// path; see internal/client.DirectClient, which this package complements
// at the store layer).
package indexer

import (
	"context"
	"fmt"

	"github.com/fastsearch/fastsearchd/internal/chunk"
	"github.com/fastsearch/fastsearchd/internal/store"
)

// Indexer adds, removes, and reports on the chunks behind one store.Store.
// It does not embed text itself: callers supply already-computed vectors,
// matching internal/store's own separation of embedding from storage.
//
// Implementations must be safe for concurrent use; Store already is.
type Indexer interface {
	// Index writes items in a single transaction: either all succeed or
	// none do. An empty slice is a no-op.
	Index(ctx context.Context, items []store.InsertItem) ([]int64, error)

	// IndexText splits text into chunks per opts (internal/chunk), embeds
	// each chunk's text via embedFn, and indexes the results under source
	// with contiguous 0-based chunk_index, matching Module A's chunker
	// followed by Module B's insert. embedFn is supplied by the caller
	// (typically a model manager's embedder) rather than owned by the
	// Indexer, keeping this package free of a model-loading dependency.
	IndexText(ctx context.Context, source, text string, opts chunk.Options, embedFn func(ctx context.Context, texts []string) ([][]float32, error)) ([]int64, error)

	// DeleteSource removes every chunk for an exact or unique-suffix source
	// match. See store.Store.DeleteSource for the suffix-ambiguity rule.
	DeleteSource(ctx context.Context, source string) (int, error)

	// Stats reports aggregate counts over the index.
	Stats(ctx context.Context) (store.Stats, error)

	// Close releases the underlying store's resources. Calls after the
	// first are no-ops.
	Close() error
}

// storeIndexer is the only Indexer implementation: a thin pass-through to
// an owned *store.Store.
type storeIndexer struct {
	store *store.Store
}

// Open opens (or creates) a store at path with embedding dimension dim and
// wraps it as an Indexer.
func Open(path string, dim int) (Indexer, error) {
	s, err := store.Open(path, dim)
	if err != nil {
		return nil, fmt.Errorf("opening store for indexing: %w", err)
	}
	return &storeIndexer{store: s}, nil
}

func (i *storeIndexer) Index(ctx context.Context, items []store.InsertItem) ([]int64, error) {
	return i.store.InsertBatch(ctx, items)
}

func (i *storeIndexer) IndexText(ctx context.Context, source, text string, opts chunk.Options, embedFn func(ctx context.Context, texts []string) ([][]float32, error)) ([]int64, error) {
	units := chunk.Chunk(text, opts.WithDefaults())
	if len(units) == 0 {
		return nil, nil
	}

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	embeddings, err := embedFn(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks for %s: %w", source, err)
	}
	if len(embeddings) != len(units) {
		return nil, fmt.Errorf("embedFn returned %d embeddings for %d chunks", len(embeddings), len(units))
	}

	items := make([]store.InsertItem, len(units))
	for idx, u := range units {
		items[idx] = store.InsertItem{
			Source:     source,
			ChunkIndex: idx,
			Content:    u.Text,
			Embedding:  embeddings[idx],
			Metadata:   u.Metadata,
		}
	}
	return i.store.InsertBatch(ctx, items)
}

func (i *storeIndexer) DeleteSource(ctx context.Context, source string) (int, error) {
	return i.store.DeleteSource(ctx, source)
}

func (i *storeIndexer) Stats(ctx context.Context) (store.Stats, error) {
	return i.store.Stats(ctx)
}

func (i *storeIndexer) Close() error {
	return i.store.Close()
}
