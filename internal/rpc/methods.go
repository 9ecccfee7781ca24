package rpc

import "time"

// Params/result shapes for each method in spec.md §4.F's table.

type SearchParams struct {
	Query  string `json:"query"`
	DBPath string `json:"db_path"`
	Limit  int    `json:"limit,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Rerank bool   `json:"rerank,omitempty"`
}

// ResultItem mirrors engine.Result's wire shape (spec.md §4.D: "ordered
// list of {id, source, chunk_index, content, metadata, rank, bm25_rank?,
// vec_rank?, rrf_score?, rerank_score?}").
type ResultItem struct {
	ID          int64             `json:"id"`
	Source      string            `json:"source"`
	ChunkIndex  int               `json:"chunk_index"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Rank        int               `json:"rank"`
	BM25Rank    *int              `json:"bm25_rank,omitempty"`
	VecRank     *int              `json:"vec_rank,omitempty"`
	RRFScore    *float64          `json:"rrf_score,omitempty"`
	RerankScore *float32          `json:"rerank_score,omitempty"`
}

type SearchResult struct {
	Results      []ResultItem `json:"results"`
	SearchTimeMS float64      `json:"search_time_ms"`
}

type EmbedParams struct {
	Texts []string `json:"texts"`
}

type EmbedResult struct {
	Embeddings [][]float32 `json:"embeddings"`
	Count      int         `json:"count"`
	EmbedTimeMS float64    `json:"embed_time_ms"`
}

type RerankParams struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type RankedItem struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

type RerankResult struct {
	Scores       []float32    `json:"scores"`
	Ranked       []RankedItem `json:"ranked"`
	RerankTimeMS float64      `json:"rerank_time_ms"`
}

type LoadModelParams struct {
	Slot string `json:"slot"`
}

type LoadModelResult struct {
	Slot     string `json:"slot"`
	MemoryMB int    `json:"memory_mb"`
}

type UnloadModelParams struct {
	Slot string `json:"slot"`
}

type UnloadModelResult struct {
	Slot string `json:"slot"`
}

type ReloadConfigParams struct {
	ConfigPath string `json:"config_path,omitempty"`
}

type ReloadConfigResult struct {
	Reloaded bool `json:"reloaded"`
}

type PingResult struct {
	OK bool `json:"ok"`
}

type ShutdownResult struct {
	Stopping bool `json:"stopping"`
}

type ModelInfo struct {
	State       string     `json:"state"`
	MemoryMB    int        `json:"memory_mb"`
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	IdleSeconds float64    `json:"idle_seconds"`
}

type StatusResult struct {
	UptimeSeconds float64              `json:"uptime_seconds"`
	RequestCount  uint64               `json:"request_count"`
	SocketPath    string               `json:"socket_path"`
	LoadedModels  map[string]ModelInfo `json:"loaded_models"`
	TotalMemoryMB int                  `json:"total_memory_mb"`
	MaxMemoryMB   int                  `json:"max_memory_mb"`
}
