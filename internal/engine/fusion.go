package engine

import (
	"math"
	"sort"

	"github.com/fastsearch/fastsearchd/internal/store"
)

// fusedCandidate is one document surviving RRF fusion, carrying everything
// needed both to sort it and to attach the optional result fields later.
type fusedCandidate struct {
	id          int64
	bm25Rank    *int
	vecRank     *int
	rrfScore    float64
	combinedRank int
}

// fuse combines a BM25 ranking and a vector ranking into one RRF-scored,
// deduplicated-by-id list, sorted per spec.md's tie-break: RRF descending,
// then lower combined rank, then lower id. This keeps the teacher's
// sortable-fused-result-plus-sort.Slice shape (internal/search/fusion.go's
// RRFFusion) but replaces its tie-break keys with the spec's own.
func fuse(bm25 []store.BM25Result, vector []store.VectorResult, bm25Weight, vecWeight float64) []fusedCandidate {
	byID := make(map[int64]*fusedCandidate)

	order := func(id int64) *fusedCandidate {
		c, ok := byID[id]
		if !ok {
			c = &fusedCandidate{id: id}
			byID[id] = c
		}
		return c
	}

	for _, r := range bm25 {
		rank := r.Rank
		c := order(r.ID)
		c.bm25Rank = &rank
	}
	for _, r := range vector {
		rank := r.Rank
		c := order(r.ID)
		c.vecRank = &rank
	}

	const absentRank = math.MaxInt32

	candidates := make([]fusedCandidate, 0, len(byID))
	for _, c := range byID {
		var score float64
		bm25Contribution := 0
		vecContribution := 0

		if c.bm25Rank != nil {
			score += bm25Weight / (rrfK + float64(*c.bm25Rank))
			bm25Contribution = *c.bm25Rank
		} else {
			bm25Contribution = absentRank
		}
		if c.vecRank != nil {
			score += vecWeight / (rrfK + float64(*c.vecRank))
			vecContribution = *c.vecRank
		} else {
			vecContribution = absentRank
		}

		c.rrfScore = score
		c.combinedRank = bm25Contribution + vecContribution
		candidates = append(candidates, *c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rrfScore != b.rrfScore {
			return a.rrfScore > b.rrfScore
		}
		if a.combinedRank != b.combinedRank {
			return a.combinedRank < b.combinedRank
		}
		return a.id < b.id
	})

	return candidates
}
