package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps a StaticEmbedder and counts EmbedBatch calls, to
// verify the cache actually avoids recomputation.
type countingEmbedder struct {
	*StaticEmbedder
	calls int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_CacheHitAvoidsRecompute(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(32)}
	cached := NewCachedEmbedder(inner, "test-model", 10)
	ctx := context.Background()

	first, err := cached.EmbedBatch(ctx, []string{"repeat me"})
	require.NoError(t, err)
	second, err := cached.EmbedBatch(ctx, []string{"repeat me"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedder_PartialCacheHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(32)}
	cached := NewCachedEmbedder(inner, "test-model", 10)
	ctx := context.Background()

	_, err := cached.EmbedBatch(ctx, []string{"known"})
	require.NoError(t, err)

	results, err := cached.EmbedBatch(ctx, []string{"known", "unknown"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_DifferentLabelsDoNotCollide(t *testing.T) {
	inner := NewStaticEmbedder(32)
	a := NewCachedEmbedder(inner, "model-a", 10)
	b := NewCachedEmbedder(inner, "model-b", 10)

	assert.NotEqual(t, a.cacheKey("same text"), b.cacheKey("same text"))
}
