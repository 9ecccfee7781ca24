package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsearch/fastsearchd/internal/store"
)

func TestFuse_DocumentInBothListsRanksAboveSingleList(t *testing.T) {
	bm25 := []store.BM25Result{{ID: 1, Rank: 1}, {ID: 2, Rank: 2}}
	vec := []store.VectorResult{{ID: 1, Rank: 1}}

	got := fuse(bm25, vec, 1.0, 1.0)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].id)
	assert.Equal(t, int64(2), got[1].id)
}

func TestFuse_TiesBrokenByLowerCombinedRankThenLowerID(t *testing.T) {
	// Two docs with identical RRF score (both rank 1 in one list only) must
	// tie-break on combined rank, then id.
	bm25 := []store.BM25Result{{ID: 20, Rank: 1}}
	vec := []store.VectorResult{{ID: 10, Rank: 1}}

	got := fuse(bm25, vec, 1.0, 1.0)
	require.Len(t, got, 2)
	assert.InDelta(t, got[0].rrfScore, got[1].rrfScore, 1e-9)
	assert.Equal(t, int64(10), got[0].id)
	assert.Equal(t, int64(20), got[1].id)
}

func TestFuse_WeightsScaleContribution(t *testing.T) {
	bm25 := []store.BM25Result{{ID: 1, Rank: 1}}
	vec := []store.VectorResult{{ID: 2, Rank: 1}}

	got := fuse(bm25, vec, 2.0, 0.5)
	var byID = map[int64]fusedCandidate{}
	for _, c := range got {
		byID[c.id] = c
	}
	assert.Greater(t, byID[1].rrfScore, byID[2].rrfScore)
}

func TestFuse_EmptyInputsReturnsEmpty(t *testing.T) {
	got := fuse(nil, nil, 1.0, 1.0)
	assert.Empty(t, got)
}
