package client

import (
	"context"
	"time"

	"github.com/fastsearch/fastsearchd/internal/config"
	"github.com/fastsearch/fastsearchd/internal/embed"
	"github.com/fastsearch/fastsearchd/internal/manager"
	"github.com/fastsearch/fastsearchd/internal/rpc"
)

// DirectClient serves the same method surface as Client but runs entirely
// in-process: its own Manager and the DaemonBackend's per-path Store/Engine
// cache, with no socket involved. Used when Probe(socketPath) finds no live
// daemon (spec.md §9: "probe the socket with a bounded connect attempt; on
// failure route through direct-mode").
type DirectClient struct {
	mgr     *manager.Manager
	backend *rpc.DaemonBackend
	cancel  context.CancelFunc
}

// NewDirectClient builds the in-process stack the same way cmd/fastsearchd
// wires the daemon: a Manager over static embed.NewStaticEmbedder /
// embed.NoOpReranker loaders, and a DaemonBackend over it.
func NewDirectClient(cfg config.Config, dim int) *DirectClient {
	loaders := map[string]manager.Loader{
		"embedder": manager.EmbedderLoader(func() (embed.Embedder, error) {
			return embed.NewStaticEmbedder(dim), nil
		}),
		"reranker": manager.RerankerLoader(func() (embed.Reranker, error) {
			return embed.NoOpReranker{}, nil
		}),
	}

	mgr := manager.New(cfg, loaders, nil)
	backend := rpc.NewDaemonBackend(cfg, mgr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)

	return &DirectClient{mgr: mgr, backend: backend, cancel: cancel}
}

func (d *DirectClient) Close() error {
	d.cancel()
	return d.backend.Close()
}

func (d *DirectClient) Ping(context.Context) error { return nil }

func (d *DirectClient) Status(ctx context.Context) (rpc.StatusResult, error) {
	return d.backend.Status(ctx)
}

func (d *DirectClient) Search(ctx context.Context, params rpc.SearchParams) (rpc.SearchResult, error) {
	return d.backend.Search(ctx, params)
}

func (d *DirectClient) Embed(ctx context.Context, texts []string) (rpc.EmbedResult, error) {
	return d.backend.Embed(ctx, texts)
}

func (d *DirectClient) Rerank(ctx context.Context, query string, documents []string) (rpc.RerankResult, error) {
	return d.backend.Rerank(ctx, query, documents)
}

func (d *DirectClient) LoadModel(ctx context.Context, slot string) (rpc.LoadModelResult, error) {
	return d.backend.LoadModel(ctx, slot)
}

func (d *DirectClient) UnloadModel(ctx context.Context, slot string) (rpc.UnloadModelResult, error) {
	return d.backend.UnloadModel(ctx, slot)
}

func (d *DirectClient) ReloadConfig(ctx context.Context, configPath string) (rpc.ReloadConfigResult, error) {
	return d.backend.ReloadConfig(ctx, configPath)
}

func (d *DirectClient) Shutdown(context.Context) (rpc.ShutdownResult, error) {
	d.cancel()
	return rpc.ShutdownResult{Stopping: true}, nil
}

// SearchClient is the common surface Client and DirectClient both satisfy,
// letting callers (e.g. pkg/searcher) depend on either without caring which
// was chosen.
type SearchClient interface {
	Search(ctx context.Context, params rpc.SearchParams) (rpc.SearchResult, error)
	Status(ctx context.Context) (rpc.StatusResult, error)
	Close() error
}

var (
	_ SearchClient = (*Client)(nil)
	_ SearchClient = (*DirectClient)(nil)
)

// Dial returns a Client connected to cfg.Daemon.SocketPath if a daemon is
// live there, otherwise a DirectClient backed by an in-process stack built
// from cfg and embedding dimension dim.
func Dial(cfg config.Config, dim int, callTimeout time.Duration) SearchClient {
	if Probe(cfg.Daemon.SocketPath) {
		return New(cfg.Daemon.SocketPath, callTimeout)
	}
	return NewDirectClient(cfg, dim)
}
