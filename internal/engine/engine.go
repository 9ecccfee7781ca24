package engine

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/fastsearch/fastsearchd/internal/errors"
	"github.com/fastsearch/fastsearchd/internal/store"
)

const defaultLimit = 10

// Engine runs bm25/vector/hybrid/hybrid_reranked searches against a
// borrowed store.Store, acquiring embedder/reranker resources from a
// borrowed ModelProvider per request. It owns neither (spec.md §3
// Ownership: "the Engine borrows, never owns, Store and Manager handles").
type Engine struct {
	store  *store.Store
	models ModelProvider
}

// New constructs an Engine over store and models. Neither is owned by the
// returned Engine; callers are responsible for their lifecycle.
func New(s *store.Store, models ModelProvider) *Engine {
	return &Engine{store: s, models: models}
}

// Search dispatches a query to the scorer(s) named by q.Mode and returns
// the ranked result list. An empty mode runs bm25; only the hybrid modes
// fuse two lists.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, apperrors.New(apperrors.KindEmptyQuery, "query is empty")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	switch q.Mode {
	case "", ModeBM25:
		return e.searchBM25(ctx, text, limit)
	case ModeVector:
		return e.searchVector(ctx, text, limit)
	case ModeHybrid:
		results, _, err := e.searchHybrid(ctx, text, limit, defaultWeight(q.BM25Weight), defaultWeight(q.VectorWeight))
		return results, err
	case ModeHybridReranked:
		return e.searchHybridReranked(ctx, text, limit, q.RerankTopK, defaultWeight(q.BM25Weight), defaultWeight(q.VectorWeight))
	default:
		return nil, apperrors.New(apperrors.KindInvalidArgument, "unknown search mode: "+string(q.Mode))
	}
}

func (e *Engine) searchBM25(ctx context.Context, text string, limit int) ([]Result, error) {
	sanitized := sanitizeBM25Query(text)
	if sanitized == "" {
		return []Result{}, nil
	}

	hits, err := e.store.SearchBM25(ctx, sanitized, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		rank := h.Rank
		results[i] = Result{ID: h.ID, Rank: i + 1, BM25Rank: &rank}
	}
	return e.enrich(ctx, results)
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	embedder, release, err := e.models.AcquireEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	vecs, err := embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Engine) searchVector(ctx context.Context, text string, limit int) ([]Result, error) {
	queryVec, err := e.embedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	hits, err := e.store.SearchVector(ctx, queryVec, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		rank := h.Rank
		results[i] = Result{ID: h.ID, Rank: i + 1, VecRank: &rank}
	}
	return e.enrich(ctx, results)
}

// searchHybrid runs BM25 and vector search in parallel over N_fetch
// candidates each, fuses by RRF, and returns the top limit. It also
// returns the full fused candidate list (beyond limit);
// searchHybridReranked ignores it and gets its larger pool by passing a
// larger limit instead.
func (e *Engine) searchHybrid(ctx context.Context, text string, limit int, bm25Weight, vecWeight float64) ([]Result, []fusedCandidate, error) {
	nFetch := limit * 4
	if nFetch < 20 {
		nFetch = 20
	}

	var bm25Hits []store.BM25Result
	var vecHits []store.VectorResult

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		sanitized := sanitizeBM25Query(text)
		if sanitized == "" {
			return nil
		}
		hits, err := e.store.SearchBM25(gctx, sanitized, nFetch)
		if err != nil {
			return err
		}
		bm25Hits = hits
		return nil
	})
	group.Go(func() error {
		queryVec, err := e.embedQuery(gctx, text)
		if err != nil {
			return err
		}
		hits, err := e.store.SearchVector(gctx, queryVec, nFetch)
		if err != nil {
			return err
		}
		vecHits = hits
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	fused := fuse(bm25Hits, vecHits, bm25Weight, vecWeight)

	top := fused
	if len(top) > limit {
		top = top[:limit]
	}

	results := make([]Result, len(top))
	for i, c := range top {
		score := c.rrfScore
		results[i] = Result{ID: c.id, Rank: i + 1, BM25Rank: c.bm25Rank, VecRank: c.vecRank, RRFScore: &score}
	}

	enriched, err := e.enrich(ctx, results)
	if err != nil {
		return nil, nil, err
	}
	return enriched, fused, nil
}

func (e *Engine) searchHybridReranked(ctx context.Context, text string, limit, rerankTopK int, bm25Weight, vecWeight float64) ([]Result, error) {
	if rerankTopK <= 0 {
		rerankTopK = limit
	}

	candidateLimit := limit
	if rerankTopK > candidateLimit {
		candidateLimit = rerankTopK
	}

	candidates, _, err := e.searchHybrid(ctx, text, candidateLimit, bm25Weight, vecWeight)
	if err != nil {
		return nil, err
	}

	rerankCount := rerankTopK
	if rerankCount > len(candidates) {
		rerankCount = len(candidates)
	}
	toRerank := candidates[:rerankCount]
	rest := candidates[rerankCount:]

	if len(toRerank) > 0 {
		reranker, release, err := e.models.AcquireReranker(ctx)
		if err != nil {
			return nil, err
		}
		defer release()

		docs := make([]string, len(toRerank))
		for i, r := range toRerank {
			docs[i] = r.Content
		}
		scores, err := reranker.ScorePairs(ctx, text, docs)
		if err != nil {
			return nil, err
		}
		for i := range toRerank {
			s := scores[i]
			toRerank[i].RerankScore = &s
		}

		sort.SliceStable(toRerank, func(i, j int) bool {
			if *toRerank[i].RerankScore != *toRerank[j].RerankScore {
				return *toRerank[i].RerankScore > *toRerank[j].RerankScore
			}
			ri, rj := rrfOf(toRerank[i]), rrfOf(toRerank[j])
			return ri > rj
		})
	}

	final := append(toRerank, rest...)
	if len(final) > limit {
		final = final[:limit]
	}
	for i := range final {
		final[i].Rank = i + 1
	}
	return final, nil
}

func rrfOf(r Result) float64 {
	if r.RRFScore == nil {
		return 0
	}
	return *r.RRFScore
}

// enrich fills Source/ChunkIndex/Content/Metadata/CreatedAt from the store
// for a slice of Results that so far only carry id and rank fields.
// Grounded on the teacher's enrichResults batch-GetChunks pattern in
// internal/search/engine.go.
func (e *Engine) enrich(ctx context.Context, results []Result) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}

	chunks, err := e.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range results {
		if c, ok := chunks[results[i].ID]; ok {
			results[i].Source = c.Source
			results[i].ChunkIndex = c.ChunkIndex
			results[i].Content = c.Content
			results[i].Metadata = c.Metadata
			results[i].CreatedAt = c.CreatedAt
		}
	}
	return results, nil
}
