package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsearch/fastsearchd/internal/store"
)

const testDim = 16

func vec() []float32 {
	return make([]float32, testDim)
}

func TestOpen_IndexAndStats(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "test.db"), testDim)
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	ids, err := idx.Index(ctx, []store.InsertItem{
		{Source: "a.go", ChunkIndex: 0, Content: "package a", Embedding: vec()},
		{Source: "b.go", ChunkIndex: 0, Content: "package b", Embedding: vec()},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, 2, stats.SourceCount)
}

func TestIndex_EmptyIsNoOp(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "test.db"), testDim)
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.Index(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestDeleteSource_RemovesMatchingChunks(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "test.db"), testDim)
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	_, err = idx.Index(ctx, []store.InsertItem{
		{Source: "a.go", ChunkIndex: 0, Content: "package a", Embedding: vec()},
	})
	require.NoError(t, err)

	n, err := idx.DeleteSource(ctx, "a.go")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ChunkCount)
}
