package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"), dim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func vec(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestStore_InsertAndGetChunk(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 4)

	id, err := s.Insert(ctx, "doc.md", 0, "hello world", vec(4, 0.5), map[string]string{"section": "intro"})
	require.NoError(t, err)
	assert.Positive(t, id)

	chunks, err := s.GetChunks(ctx, []int64{id})
	require.NoError(t, err)
	require.Contains(t, chunks, id)
	assert.Equal(t, "hello world", chunks[id].Content)
	assert.Equal(t, "intro", chunks[id].Metadata["section"])
}

func TestStore_InsertRejectsEmptyContent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 4)

	_, err := s.Insert(ctx, "doc.md", 0, "", vec(4, 0.1), nil)
	assert.Error(t, err)
}

func TestStore_InsertRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 4)

	_, err := s.Insert(ctx, "doc.md", 0, "text", vec(3, 0.1), nil)
	assert.Error(t, err)
}

func TestStore_InsertBatchAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 4)

	_, err := s.InsertBatch(ctx, []InsertItem{
		{Source: "doc.md", ChunkIndex: 0, Content: "ok", Embedding: vec(4, 0.1)},
		{Source: "doc.md", ChunkIndex: 1, Content: "bad", Embedding: vec(3, 0.1)},
	})
	require.Error(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ChunkCount)
}

func TestStore_SearchBM25FindsInsertedContent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 4)

	_, err := s.Insert(ctx, "doc.md", 0, "the quick brown fox", vec(4, 0.1), nil)
	require.NoError(t, err)

	results, err := s.SearchBM25(ctx, "quick fox", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 1, results[0].Rank)
}

func TestStore_SearchVectorReturnsNearest(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 4)

	closeID, err := s.Insert(ctx, "doc.md", 0, "near", vec(4, 1.0), nil)
	require.NoError(t, err)
	_, err = s.Insert(ctx, "doc.md", 1, "far", []float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)

	results, err := s.SearchVector(ctx, vec(4, 1.0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, closeID, results[0].ID)
}

func TestStore_DeleteSourceExactMatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 4)

	_, err := s.Insert(ctx, "docs/a.md", 0, "content a", vec(4, 0.1), nil)
	require.NoError(t, err)
	_, err = s.Insert(ctx, "docs/b.md", 0, "content b", vec(4, 0.1), nil)
	require.NoError(t, err)

	n, err := s.DeleteSource(ctx, "docs/a.md")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunkCount)
}

func TestStore_DeleteSourceAmbiguousSuffix(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 4)

	_, err := s.Insert(ctx, "docs/a/README.md", 0, "content", vec(4, 0.1), nil)
	require.NoError(t, err)
	_, err = s.Insert(ctx, "docs/b/README.md", 0, "content", vec(4, 0.1), nil)
	require.NoError(t, err)

	_, err = s.DeleteSource(ctx, "README.md")
	require.Error(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunkCount)
}

func TestStore_DeleteSourceSuffixIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 4)

	_, err := s.Insert(ctx, "docs/README.md", 0, "content", vec(4, 0.1), nil)
	require.NoError(t, err)

	n, err := s.DeleteSource(ctx, "readme.md")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ReopenWithDifferentDimensionFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := Open(path, 4)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, 8)
	assert.Error(t, err)
}

func TestStore_VectorIndexRebuildsOnReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()

	s, err := Open(path, 4)
	require.NoError(t, err)
	id, err := s.Insert(ctx, "doc.md", 0, "content", vec(4, 1.0), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path, 4)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.SearchVector(ctx, vec(4, 1.0), 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, id, results[0].ID)
}
