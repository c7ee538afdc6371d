// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/audiencegraph/influence-crawler/internal/config"
	"github.com/audiencegraph/influence-crawler/internal/crawl"
	"github.com/audiencegraph/influence-crawler/internal/graph"
	"github.com/audiencegraph/influence-crawler/internal/logging"
	"github.com/audiencegraph/influence-crawler/internal/metrics"
	"github.com/audiencegraph/influence-crawler/internal/publisher/noop"
	pubsubpublisher "github.com/audiencegraph/influence-crawler/internal/publisher/pubsub"
	"github.com/audiencegraph/influence-crawler/internal/ranking"
	"github.com/audiencegraph/influence-crawler/internal/storage/fs"
	"github.com/audiencegraph/influence-crawler/internal/storage/gcs"
	"github.com/audiencegraph/influence-crawler/internal/storage/memory"
	"github.com/audiencegraph/influence-crawler/internal/storage/postgres"
	"github.com/audiencegraph/influence-crawler/internal/youtube"
)

// App holds the shared, long-lived services of the pipeline: logger, stores,
// API gateway, scheduler, graph builder and ranking engine. It is built once
// at startup and passed to the components that need it.
type App struct {
	Logger    *zap.Logger
	Corpus    crawl.CorpusStore
	Tokens    crawl.ResumeStore
	Artifacts crawl.ArtifactStore
	Publisher crawl.Publisher
	Scheduler *crawl.Scheduler
	Builder   *graph.Builder
	Engine    *ranking.Engine

	closers []func()
}

// New wires all services from configuration, failing fast when a critical
// backend cannot be reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	metrics.Init()

	a := &App{Logger: logger}

	dbCfg := postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.ConnLifetime(),
	}
	corpus, err := postgres.NewCorpusStore(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize corpus store: %w", err)
	}
	a.Corpus = corpus
	a.closers = append(a.closers, corpus.Close)

	tokens, err := postgres.NewResumeStore(ctx, dbCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize resume store: %w", err)
	}
	a.Tokens = tokens
	a.closers = append(a.closers, tokens.Close)

	if a.Artifacts, err = newArtifactStore(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	if a.Publisher, err = a.newPublisher(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}

	gateway, err := youtube.NewClient(youtube.Config{
		APIKey:  cfg.API.Key,
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
	}, logger.Named("youtube"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize content api client: %w", err)
	}

	a.Scheduler = crawl.NewScheduler(gateway, a.Corpus, a.Tokens, a.Publisher, nil, crawl.Config{
		CommentPageLimit: cfg.Crawl.CommentPageLimit,
		BatchSize:        cfg.Crawl.BatchSize,
		CompletionTopic:  cfg.Crawl.CompletionTopic,
	}, logger.Named("crawl"))
	a.Builder = graph.NewBuilder(a.Corpus, a.Scheduler, logger.Named("graph"))
	a.Engine = ranking.NewEngine(a.Artifacts, a.Publisher, cfg.PubSub.RankingTopic, nil, logger.Named("ranking"))

	logger.Info("application services initialized",
		zap.String("artifacts_backend", cfg.Artifacts.Backend),
		zap.Bool("pubsub_enabled", cfg.PubSub.Enabled),
	)
	return a, nil
}

// Close releases all held resources in reverse initialization order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

func newArtifactStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawl.ArtifactStore, error) {
	switch cfg.Artifacts.Backend {
	case "gcs":
		logger.Info("using GCS artifact store", zap.String("bucket", cfg.Artifacts.GCSBucket))
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		store, err := gcs.New(ctx, client, gcs.Config{Bucket: cfg.Artifacts.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("initialize gcs artifact store: %w", err)
		}
		return store, nil
	case "fs":
		logger.Info("using filesystem artifact store", zap.String("base_dir", cfg.Artifacts.BaseDir))
		store, err := fs.New(fs.Config{BaseDir: cfg.Artifacts.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("initialize fs artifact store: %w", err)
		}
		return store, nil
	case "memory":
		logger.Info("using in-memory artifact store; artifacts will not survive restarts")
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown artifacts backend: %s", cfg.Artifacts.Backend)
	}
}

func (a *App) newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawl.Publisher, error) {
	if !cfg.PubSub.Enabled {
		logger.Info("pubsub disabled, completion events will be dropped")
		return noop.New(), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		return nil, fmt.Errorf("initialize publisher: %w", err)
	}
	a.closers = append(a.closers, func() { _ = pub.Close() })
	logger.Info("pubsub publisher initialized", zap.String("project", cfg.PubSub.ProjectID))
	return pub, nil
}
