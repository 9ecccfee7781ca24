package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastsearch/fastsearchd/internal/config"
	"github.com/fastsearch/fastsearchd/internal/engine"
	apperrors "github.com/fastsearch/fastsearchd/internal/errors"
	"github.com/fastsearch/fastsearchd/internal/manager"
	"github.com/fastsearch/fastsearchd/internal/store"
)

// DaemonBackend is the composition-root implementation of Backend: it owns
// the per-path store cache and delegates model and search work to a
// *manager.Manager and per-store *engine.Engine instances. cmd/fastsearchd
// constructs one of these and hands it to NewServer.
type DaemonBackend struct {
	cfg     config.Config
	mgr     *manager.Manager
	logger  *slog.Logger
	started time.Time

	requestCount atomic.Uint64

	mu      sync.Mutex
	engines map[string]*openStore
}

type openStore struct {
	store     *store.Store
	engine    *engine.Engine
	compactor *store.Compactor
}

// NewDaemonBackend constructs a DaemonBackend. cfg.Daemon.SocketPath is
// reported verbatim in status responses. logger may be nil, in which case
// slog.Default() is used for the per-store background compactor's logging.
func NewDaemonBackend(cfg config.Config, mgr *manager.Manager, logger *slog.Logger) *DaemonBackend {
	return &DaemonBackend{
		cfg:     cfg,
		mgr:     mgr,
		logger:  logger,
		started: time.Now(),
		engines: make(map[string]*openStore),
	}
}

func compactionConfigFrom(cfg config.Config) store.CompactionConfig {
	return store.CompactionConfig{
		Enabled:         cfg.Compaction.Enabled,
		IdleTimeout:     time.Duration(cfg.Compaction.IdleTimeoutSeconds) * time.Second,
		Cooldown:        time.Duration(cfg.Compaction.CooldownSeconds) * time.Second,
		OrphanThreshold: cfg.Compaction.OrphanThreshold,
		MinOrphanCount:  cfg.Compaction.MinOrphanCount,
	}
}

// CountRequest records one dispatched RPC call for status.request_count.
// The Server calls this once per request before dispatch.
func (b *DaemonBackend) CountRequest() {
	b.requestCount.Add(1)
}

func (b *DaemonBackend) engineFor(ctx context.Context, dbPath string) (*engine.Engine, error) {
	b.mu.Lock()
	if os, ok := b.engines[dbPath]; ok {
		b.mu.Unlock()
		return os.engine, nil
	}
	b.mu.Unlock()

	embedder, release, err := b.mgr.AcquireEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	dim := embedder.Dimensions()
	release()

	s, err := store.Open(dbPath, dim)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}

	eng := engine.New(s, b.mgr)
	compactor := store.NewCompactor(s, compactionConfigFrom(b.cfg), b.logger)
	compactor.Start(context.Background())

	b.mu.Lock()
	if existing, ok := b.engines[dbPath]; ok {
		b.mu.Unlock()
		compactor.Stop()
		_ = s.Close()
		return existing.engine, nil
	}
	b.engines[dbPath] = &openStore{store: s, engine: eng, compactor: compactor}
	b.mu.Unlock()

	return eng, nil
}

func (b *DaemonBackend) Search(ctx context.Context, p SearchParams) (SearchResult, error) {
	if p.DBPath == "" {
		return SearchResult{}, apperrors.New(apperrors.KindInvalidArgument, "db_path is required")
	}

	eng, err := b.engineFor(ctx, p.DBPath)
	if err != nil {
		return SearchResult{}, err
	}

	mode := engine.Mode(p.Mode)
	if mode == "" {
		mode = engine.ModeHybrid
	}
	if p.Rerank && mode == engine.ModeHybrid {
		mode = engine.ModeHybridReranked
	}

	start := time.Now()
	results, err := eng.Search(ctx, engine.Query{Text: p.Query, Mode: mode, Limit: p.Limit})
	elapsed := time.Since(start)
	if err != nil {
		return SearchResult{}, err
	}

	b.mu.Lock()
	if os, ok := b.engines[p.DBPath]; ok {
		os.compactor.OnSearch()
	}
	b.mu.Unlock()

	items := make([]ResultItem, len(results))
	for i, r := range results {
		items[i] = ResultItem{
			ID: r.ID, Source: r.Source, ChunkIndex: r.ChunkIndex, Content: r.Content,
			Metadata: r.Metadata, Rank: r.Rank, BM25Rank: r.BM25Rank, VecRank: r.VecRank,
			RRFScore: r.RRFScore, RerankScore: r.RerankScore,
		}
	}
	return SearchResult{Results: items, SearchTimeMS: float64(elapsed.Microseconds()) / 1000.0}, nil
}

func (b *DaemonBackend) Embed(ctx context.Context, texts []string) (EmbedResult, error) {
	embedder, release, err := b.mgr.AcquireEmbedder(ctx)
	if err != nil {
		return EmbedResult{}, err
	}
	defer release()

	start := time.Now()
	vecs, err := embedder.EmbedBatch(ctx, texts)
	elapsed := time.Since(start)
	if err != nil {
		return EmbedResult{}, err
	}
	return EmbedResult{Embeddings: vecs, Count: len(vecs), EmbedTimeMS: float64(elapsed.Microseconds()) / 1000.0}, nil
}

func (b *DaemonBackend) Rerank(ctx context.Context, query string, documents []string) (RerankResult, error) {
	reranker, release, err := b.mgr.AcquireReranker(ctx)
	if err != nil {
		return RerankResult{}, err
	}
	defer release()

	start := time.Now()
	scores, err := reranker.ScorePairs(ctx, query, documents)
	elapsed := time.Since(start)
	if err != nil {
		return RerankResult{}, err
	}

	ranked := make([]RankedItem, len(scores))
	for i, s := range scores {
		ranked[i] = RankedItem{Index: i, Score: s}
	}
	return RerankResult{Scores: scores, Ranked: ranked, RerankTimeMS: float64(elapsed.Microseconds()) / 1000.0}, nil
}

func (b *DaemonBackend) LoadModel(ctx context.Context, slot string) (LoadModelResult, error) {
	if err := b.mgr.Load(ctx, slot); err != nil {
		return LoadModelResult{}, err
	}
	for _, st := range b.mgr.Status() {
		if st.Slot == slot {
			return LoadModelResult{Slot: slot, MemoryMB: st.MemoryMB}, nil
		}
	}
	return LoadModelResult{Slot: slot}, nil
}

func (b *DaemonBackend) UnloadModel(ctx context.Context, slot string) (UnloadModelResult, error) {
	if err := b.mgr.Unload(ctx, slot); err != nil {
		return UnloadModelResult{}, err
	}
	return UnloadModelResult{Slot: slot}, nil
}

func (b *DaemonBackend) ReloadConfig(_ context.Context, configPath string) (ReloadConfigResult, error) {
	path := configPath
	if path == "" {
		path = config.PathFromEnv("")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return ReloadConfigResult{}, apperrors.Wrap(apperrors.KindInvalidArgument, err)
	}
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	b.mgr.Reload(cfg)
	return ReloadConfigResult{Reloaded: true}, nil
}

func (b *DaemonBackend) Status(context.Context) (StatusResult, error) {
	b.mu.Lock()
	socketPath := b.cfg.Daemon.SocketPath
	maxMemory := b.cfg.Memory.MaxRAMMB
	b.mu.Unlock()

	loaded := make(map[string]ModelInfo)
	total := 0
	for _, st := range b.mgr.Status() {
		if st.State != manager.StateLoaded && st.State != manager.StateLoading {
			continue
		}
		info := ModelInfo{State: string(st.State), MemoryMB: st.MemoryMB, IdleSeconds: st.IdleSeconds}
		if st.State == manager.StateLoaded {
			loadedAt := st.LoadedAt
			lastUsed := st.LastUsed
			info.LoadedAt = &loadedAt
			info.LastUsed = &lastUsed
			total += st.MemoryMB
		}
		loaded[st.Slot] = info
	}

	return StatusResult{
		UptimeSeconds: time.Since(b.started).Seconds(),
		RequestCount:  b.requestCount.Load(),
		SocketPath:    socketPath,
		LoadedModels:  loaded,
		TotalMemoryMB: total,
		MaxMemoryMB:   maxMemory,
	}, nil
}

func (b *DaemonBackend) Shutdown(context.Context) (ShutdownResult, error) {
	return ShutdownResult{Stopping: true}, nil
}

// Close closes every store opened for this backend's lifetime. Called by
// cmd/fastsearchd during graceful shutdown.
func (b *DaemonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for path, os := range b.engines {
		os.compactor.Stop()
		if err := os.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing store %s: %w", path, err)
		}
	}
	return firstErr
}
