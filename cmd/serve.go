package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/gitquery/api"
	"github.com/koopa0/gitquery/db"
	"github.com/koopa0/gitquery/internal/config"
	"github.com/koopa0/gitquery/internal/gemini"
	"github.com/koopa0/gitquery/internal/github"
	"github.com/koopa0/gitquery/internal/ingest"
	"github.com/koopa0/gitquery/internal/observability"
	"github.com/koopa0/gitquery/internal/rag"
	"github.com/koopa0/gitquery/internal/store"
	"github.com/koopa0/gitquery/internal/store/postgres"
	"github.com/koopa0/gitquery/internal/store/sqlitevec"
)

// storage is what the serve loop needs from either backend.
type storage interface {
	store.VectorIndex
	store.SessionStore
	Ping(ctx context.Context) error
}

// runServe initializes all dependencies and starts the HTTP API server.
func runServe() error {
	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting gitquery",
		"version", AppVersion,
		"backend", cfg.StorageBackend,
	)

	if cfg.Tracing.Enabled {
		shutdown, err := observability.SetupTracing(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("tracing shutdown error", "error", err)
			}
		}()
	}

	st, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer closeStorage()

	client, err := gemini.New(ctx, gemini.Config{
		APIKey:        cfg.GeminiAPIKey,
		Model:         cfg.ModelName,
		EmbedderModel: cfg.EmbedderModel,
		Dimension:     cfg.EmbedderDimension,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}

	fetcher := github.NewFetcher(github.Config{
		Token:             cfg.GitHubToken,
		Branch:            cfg.GitHubBranch,
		RequestsPerSecond: cfg.GitHubRateLimit,
	}, logger)

	service, err := rag.New(rag.Config{TopK: cfg.TopK},
		fetcher,
		ingest.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		client, client, st, st, logger)
	if err != nil {
		return fmt.Errorf("creating rag service: %w", err)
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr:    cfg.ListenAddr,
		Service: service,
		Pinger:  st,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return server.Run(ctx)
}

// openStorage opens the configured backend and returns it along with a
// cleanup function.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		connStr := cfg.PostgresConnectionString()
		if err := db.Migrate(connStr); err != nil {
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		st, err := postgres.New(pool, cfg.EmbedderDimension, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil

	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		st, err := sqlitevec.Open(cfg.SQLitePath, cfg.EmbedderDimension, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Warn("sqlite close error", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
