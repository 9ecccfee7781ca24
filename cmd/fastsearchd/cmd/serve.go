package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fastsearch/fastsearchd/internal/config"
	"github.com/fastsearch/fastsearchd/internal/embed"
	"github.com/fastsearch/fastsearchd/internal/logging"
	"github.com/fastsearch/fastsearchd/internal/manager"
	"github.com/fastsearch/fastsearchd/internal/rpc"
)

// defaultDimension is the embedding dimension used when no real embedder
// backend is configured (spec.md §6: "default 768").
const defaultDimension = 768

func newServeCmd() *cobra.Command {
	var configPath string
	var maxConns int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fastsearchd daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, maxConns)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML config file (or FASTSEARCH_CONFIG)")
	cmd.Flags().IntVar(&maxConns, "max-conns", 64, "Maximum number of concurrent RPC connections")

	return cmd
}

func runServe(ctx context.Context, configPath string, maxConns int) error {
	cfg, err := config.Load(config.PathFromEnv(configPath))
	if err != nil {
		return &invalidArgsError{err: fmt.Errorf("loading config: %w", err)}
	}

	logger, cleanupLogging, err := logging.Setup(logging.Config{Level: cfg.Daemon.LogLevel, WriteToStderr: true})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer cleanupLogging()
	slog.SetDefault(logger)

	loaders := map[string]manager.Loader{
		"embedder": manager.EmbedderLoader(func() (embed.Embedder, error) {
			return embed.NewStaticEmbedder(defaultDimension), nil
		}),
		"reranker": manager.RerankerLoader(func() (embed.Reranker, error) {
			return embed.NoOpReranker{}, nil
		}),
	}

	mgr := manager.New(cfg, loaders, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("starting model manager: %w", err)
	}
	go mgr.Run(ctx)

	backend := rpc.NewDaemonBackend(cfg, mgr, logger)
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("error closing stores during shutdown", "error", err)
		}
	}()

	server := rpc.NewServer(cfg.Daemon.SocketPath, cfg.Daemon.PIDPath, backend, maxConns, logger)

	err = server.ListenAndServe(ctx)
	if err != nil && ctx.Err() != nil {
		// Context was cancelled (signal received): a clean, expected stop.
		return nil
	}
	return err
}
