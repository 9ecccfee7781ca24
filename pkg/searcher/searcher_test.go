package searcher

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsearch/fastsearchd/internal/embed"
	"github.com/fastsearch/fastsearchd/internal/engine"
	"github.com/fastsearch/fastsearchd/internal/store"
)

const testDim = 16

// staticProvider is a fixed engine.ModelProvider used in tests in place of
// internal/manager.Manager (mirrors internal/engine's own test fake).
type staticProvider struct {
	embedder embed.Embedder
	reranker embed.Reranker
}

func noopRelease() {}

func (p *staticProvider) AcquireEmbedder(context.Context) (embed.Embedder, func(), error) {
	return p.embedder, noopRelease, nil
}
func (p *staticProvider) AcquireReranker(context.Context) (embed.Reranker, func(), error) {
	return p.reranker, noopRelease, nil
}

func TestOpen_SearchReturnsIndexedChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(path, testDim)
	require.NoError(t, err)
	embedding := make([]float32, testDim)
	embedding[0] = 1
	_, err = s.InsertBatch(context.Background(), []store.InsertItem{
		{Source: "a.go", ChunkIndex: 0, Content: "package main", Embedding: embedding},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	provider := &staticProvider{embedder: embed.NewStaticEmbedder(testDim), reranker: embed.NoOpReranker{}}
	srch, err := Open(path, testDim, provider)
	require.NoError(t, err)
	defer srch.Close()

	results, err := srch.Search(context.Background(), "main", "", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearch_EmptyModeDefaultsToHybrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	provider := &staticProvider{embedder: embed.NewStaticEmbedder(testDim), reranker: embed.NoOpReranker{}}

	srch, err := Open(path, testDim, provider)
	require.NoError(t, err)
	defer srch.Close()

	results, err := srch.Search(context.Background(), "nothing indexed", "", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Over indexed content, only fused (hybrid) results carry an RRF score;
	// the engine's own empty-mode path (bm25) leaves it unset.
	path2 := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path2, testDim)
	require.NoError(t, err)
	embedding := make([]float32, testDim)
	embedding[0] = 1
	_, err = s.InsertBatch(context.Background(), []store.InsertItem{
		{Source: "a.go", ChunkIndex: 0, Content: "package main", Embedding: embedding},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	srch2, err := Open(path2, testDim, provider)
	require.NoError(t, err)
	defer srch2.Close()

	results, err = srch2.Search(context.Background(), "main", "", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.NotNil(t, results[0].RRFScore)
}
