package store

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// ftsDocument is the document shape indexed into bleve. The id is the
// chunk's primary-table id, carried as the bleve document id (a string,
// since bleve doesn't index integer doc ids natively).
type ftsDocument struct {
	Content string `json:"content"`
}

func openFTSIndex(path string) (bleve.Index, error) {
	indexMapping, err := newFTSMapping()
	if err != nil {
		return nil, fmt.Errorf("building fts mapping: %w", err)
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("opening fts index: %w", err)
	}
	return idx, nil
}

func newFTSMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "standard"
	return indexMapping, nil
}

func ftsIndexChunk(idx bleve.Index, id int64, content string) error {
	return idx.Index(ftsDocKey(id), ftsDocument{Content: content})
}

func ftsDeleteChunk(idx bleve.Index, id int64) error {
	return idx.Delete(ftsDocKey(id))
}

func ftsDocKey(id int64) string {
	return fmt.Sprintf("%d", id)
}

// ftsSearch runs a sanitized query against the fts index, returning raw hits
// in bleve's native descending-score order.
func ftsSearch(ctx context.Context, idx bleve.Index, sanitizedQuery string, limit int) ([]bleveHit, error) {
	if sanitizedQuery == "" {
		return nil, nil
	}

	query := bleve.NewMatchQuery(sanitizedQuery)
	query.SetField("content")

	req := bleve.NewSearchRequest(query)
	req.Size = limit

	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}

	hits := make([]bleveHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, bleveHit{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

type bleveHit struct {
	ID    string
	Score float64
}
