package rpc

import "context"

// Backend is the subsystem-facing half of every RPC method: the Server
// decodes/encodes JSON and handles framing, Backend does the actual work.
// Grounded on the teacher's server.go RequestHandler interface
// (HandleSearch/GetStatus), generalized to the full spec.md §4.F method
// table.
type Backend interface {
	Status(ctx context.Context) (StatusResult, error)
	Search(ctx context.Context, p SearchParams) (SearchResult, error)
	Embed(ctx context.Context, texts []string) (EmbedResult, error)
	Rerank(ctx context.Context, query string, documents []string) (RerankResult, error)
	LoadModel(ctx context.Context, slot string) (LoadModelResult, error)
	UnloadModel(ctx context.Context, slot string) (UnloadModelResult, error)
	ReloadConfig(ctx context.Context, configPath string) (ReloadConfigResult, error)
	Shutdown(ctx context.Context) (ShutdownResult, error)
}
