package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// vectorIndex wraps an in-memory coder/hnsw graph keyed directly by chunk
// id. Unlike the teacher's HNSWStore (string ids needing a uint64 mapping
// layer), chunk ids here are already the store's own monotonic int64
// sequence, so the key IS the id.
type vectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dim   int

	// deleted holds lazily-removed ids: coder/hnsw has no safe single-node
	// delete, so removed vectors are hidden from results instead of
	// physically removed from the graph (mirrors the teacher's hnsw.go
	// lazy-deletion comment).
	deleted map[uint64]struct{}
}

func newVectorIndex(dim int) *vectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 32
	graph.EfSearch = 64

	return &vectorIndex{
		graph:   graph,
		dim:     dim,
		deleted: make(map[uint64]struct{}),
	}
}

func (v *vectorIndex) Add(_ context.Context, id int64, embedding []float32) error {
	if len(embedding) != v.dim {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", v.dim, len(embedding))
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	normalizeInPlace(vec)

	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.deleted, uint64(id))
	v.graph.Add(hnsw.MakeNode(uint64(id), vec))
	return nil
}

func (v *vectorIndex) Delete(_ context.Context, ids []int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		v.deleted[uint64(id)] = struct{}{}
	}
}

func (v *vectorIndex) Search(_ context.Context, query []float32, limit int) ([]VectorResult, error) {
	if len(query) != v.dim {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", v.dim, len(query))
	}

	vec := make([]float32, len(query))
	copy(vec, query)
	normalizeInPlace(vec)

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph.Len() == 0 {
		return nil, nil
	}

	// over-fetch past deletions since coder/hnsw can't filter server-side
	fetch := limit + len(v.deleted)
	if fetch < limit {
		fetch = limit
	}
	nodes := v.graph.Search(vec, fetch)

	results := make([]VectorResult, 0, limit)
	for _, node := range nodes {
		if _, gone := v.deleted[node.Key]; gone {
			continue
		}
		dist := v.graph.Distance(vec, node.Value)
		results = append(results, VectorResult{ID: int64(node.Key), Distance: dist})
		if len(results) == limit {
			break
		}
	}

	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// vectorStats reports the live graph size and how many of its nodes are
// tombstoned, so callers can decide whether a rebuild is worthwhile.
type vectorStats struct {
	Nodes   int
	Orphans int
}

func (v *vectorIndex) stats() vectorStats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return vectorStats{Nodes: v.graph.Len(), Orphans: len(v.deleted)}
}

// rebuild replaces the graph with a fresh one built only from live (id,
// embedding) pairs, discarding every tombstoned node and its deletion
// marker. Embeddings are pre-normalized; rebuild skips re-normalizing them.
func (v *vectorIndex) rebuild(live map[int64][]float32) {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 32
	graph.EfSearch = 64

	for id, vec := range live {
		graph.Add(hnsw.MakeNode(uint64(id), vec))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.graph = graph
	v.deleted = make(map[uint64]struct{})
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
