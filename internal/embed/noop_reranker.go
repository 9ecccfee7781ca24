package embed

import "context"

// NoOpReranker assigns a strictly descending score to each document in its
// input order, preserving whatever order the caller already fused the
// candidates in. fastsearchd serve and DirectClient load it into the
// "reranker" slot, so hybrid_reranked search runs without changing result
// order. A slot with the "disabled" policy never loads it: acquiring a
// disabled slot fails with ModelDisabled.
type NoOpReranker struct{}

func (NoOpReranker) ScorePairs(_ context.Context, _ string, docs []string) ([]float32, error) {
	scores := make([]float32, len(docs))
	for i := range docs {
		scores[i] = 1.0 - float32(i)*0.001
	}
	return scores, nil
}

func (NoOpReranker) EstimatedMemoryMB() int { return 0 }

func (NoOpReranker) Close() error { return nil }
