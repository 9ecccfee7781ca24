package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(128)
	ctx := context.Background()

	first, err := e.EmbedBatch(ctx, []string{"hello world"})
	require.NoError(t, err)
	second, err := e.EmbedBatch(ctx, []string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, first[0], second[0])
}

func TestStaticEmbedder_DimensionsMatchesConstructor(t *testing.T) {
	e := NewStaticEmbedder(64)
	vecs, err := e.EmbedBatch(context.Background(), []string{"some text"})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 64)
	assert.Equal(t, 64, e.Dimensions())
}

func TestStaticEmbedder_EmptyTextReturnsZeroVector(t *testing.T) {
	e := NewStaticEmbedder(32)
	vecs, err := e.EmbedBatch(context.Background(), []string{"   "})
	require.NoError(t, err)
	for _, v := range vecs[0] {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_DifferentTextsDifferentVectors(t *testing.T) {
	e := NewStaticEmbedder(128)
	vecs, err := e.EmbedBatch(context.Background(), []string{"alpha beta", "gamma delta epsilon"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestStaticEmbedder_ClosedRejectsEmbed(t *testing.T) {
	e := NewStaticEmbedder(16)
	require.NoError(t, e.Close())
	_, err := e.EmbedBatch(context.Background(), []string{"text"})
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
