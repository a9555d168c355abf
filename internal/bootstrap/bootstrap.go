package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ebookgov/property-voice-agent/internal/config"
	"github.com/ebookgov/property-voice-agent/internal/core/cache"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
	"github.com/ebookgov/property-voice-agent/internal/core/usecase"
	rediscache "github.com/ebookgov/property-voice-agent/internal/infrastructure/cache/redis"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/chunking"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/llm/huggingface"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/llm/ollama"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/queue/nats"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/repository/postgres"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/resilience"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/vector/qdrant"
	"github.com/ebookgov/property-voice-agent/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Cache *cache.LookupCache
	// Bus is nil when NATS is not configured.
	Bus *nats.Bus

	PropertyUC   *usecase.PropertyLookupUseCase
	ListingUC    *usecase.PropertySearchUseCase
	KnowledgeUC  *usecase.KnowledgeQueryUseCase
	CacheAdminUC *usecase.CacheAdminUseCase
	SeedUC       *usecase.PropertySeedUseCase
	IngestUC     *usecase.KnowledgeIngestUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.NewHTTPServerMetrics("api")
	executor := NewExecutor(cfg, logger, m.ObserveBreakerState)

	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var closers []func()
	closers = append(closers, func() { _ = db.Close() })
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	cacheOpts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithObserver(m.CacheObserver()),
	}
	if distributed := openDistributedCache(ctx, cfg, executor, logger); distributed != nil {
		cacheOpts = append(cacheOpts, cache.WithDistributed(distributed))
		closers = append(closers, func() { _ = distributed.Close() })
	}
	lookupCache := cache.New(cacheConfig(cfg), cacheOpts...)
	closers = append(closers, lookupCache.Close)

	bus := openBus(cfg, executor, logger)
	var invalidationBus ports.InvalidationBus
	if bus != nil {
		invalidationBus = bus
		closers = append(closers, bus.Close)
	}

	embedder, err := NewEmbedder(cfg, executor)
	if err != nil {
		closeAll()
		return nil, err
	}
	store := newRetrievalStore(cfg, executor)
	fusion := usecase.NewFusionEngine(store, fusionConfig(cfg, store), logger, m.FusionObserver())

	listingStore := newListingStore(cfg, executor)
	listingUC := usecase.NewPropertySearchUseCase(
		embedder,
		usecase.NewFusionEngine(listingStore, fusionConfig(cfg, listingStore), logger, m.FusionObserver()),
		lookupCache,
		usecase.PropertySearchConfig{TTL: cfg.ListingSearchTTL, ResolveMinVectorScore: cfg.ListingResolveMinScore},
		logger,
	)
	listings := usecase.NewListingIndexer(embedder, listingStore, 0)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Cache:   lookupCache,
		Bus:     bus,

		PropertyUC:   usecase.NewPropertyLookupUseCase(repo, lookupCache, logger, usecase.WithPropertyResolver(listingUC)),
		ListingUC:    listingUC,
		KnowledgeUC:  usecase.NewKnowledgeQueryUseCase(embedder, fusion, logger),
		CacheAdminUC: usecase.NewCacheAdminUseCase(lookupCache, invalidationBus, cfg.InstanceID, logger),
		SeedUC:       usecase.NewPropertySeedUseCase(repo, lookupCache, invalidationBus, logger, usecase.WithListingIndex(listings)),
		IngestUC:     newIngestUseCase(cfg, embedder, store, logger),

		closeFn: closeAll,
	}, nil
}

// RunInvalidationListener applies invalidations broadcast by other instances
// until ctx is done, resubscribing after a failed subscription. It returns
// immediately when NATS is not configured.
func (a *App) RunInvalidationListener(ctx context.Context) error {
	if a.Bus == nil {
		return nil
	}
	const resubscribeWait = 5 * time.Second
	for {
		err := a.Bus.SubscribeInvalidation(ctx, a.CacheAdminUC.HandleRemote)
		if err == nil || ctx.Err() != nil {
			return err
		}
		a.Logger.Warn("invalidation_subscribe_failed", "error", err, "retry_in", resubscribeWait.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeWait):
		}
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// NewExecutor builds the shared retry and circuit breaker executor.
func NewExecutor(cfg config.Config, logger *slog.Logger, listener resilience.StateListener) *resilience.Executor {
	rcfg := resilience.DefaultConfig()
	rcfg.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	rcfg.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	rcfg.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	rcfg.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		rcfg.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	rcfg.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	rcfg.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout

	opts := []resilience.Option{resilience.WithLogger(logger)}
	if listener != nil {
		opts = append(opts, resilience.WithStateListener(listener))
	}
	return resilience.NewExecutor(rcfg, opts...)
}

// NewEmbedder selects the embedding backend named by EMBEDDING_PROVIDER.
func NewEmbedder(cfg config.Config, executor *resilience.Executor) (ports.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider)) {
	case "", "huggingface", "hf":
		return huggingface.NewEmbedder(cfg.HFAPIURL, cfg.HFEmbedModel, cfg.HFAPIToken, cfg.EmbeddingDimension, cfg.EmbeddingTimeout, executor), nil
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.EmbeddingDimension, cfg.EmbeddingTimeout, executor)
		return ollama.NewEmbedder(client), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}
}

// NewIngestor wires knowledge ingestion without the property side.
func NewIngestor(cfg config.Config, logger *slog.Logger) (*usecase.KnowledgeIngestUseCase, error) {
	executor := NewExecutor(cfg, logger, nil)
	embedder, err := NewEmbedder(cfg, executor)
	if err != nil {
		return nil, err
	}
	return newIngestUseCase(cfg, embedder, newRetrievalStore(cfg, executor), logger), nil
}

// NewSeeder wires property seeding. Cached lookups are cleared in the shared
// tier directly and broadcast so running instances drop their local copies.
func NewSeeder(ctx context.Context, cfg config.Config, logger *slog.Logger) (*usecase.PropertySeedUseCase, func(), error) {
	executor := NewExecutor(cfg, logger, nil)
	embedder, err := NewEmbedder(cfg, executor)
	if err != nil {
		return nil, nil, err
	}
	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() { _ = db.Close() }}

	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if distributed := openDistributedCache(ctx, cfg, executor, logger); distributed != nil {
		cacheOpts = append(cacheOpts, cache.WithDistributed(distributed))
		closers = append(closers, func() { _ = distributed.Close() })
	}
	lookupCache := cache.New(cacheConfig(cfg), cacheOpts...)
	closers = append(closers, lookupCache.Close)

	var invalidationBus ports.InvalidationBus
	if bus := openBus(cfg, executor, logger); bus != nil {
		invalidationBus = bus
		closers = append(closers, bus.Close)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	listings := usecase.NewListingIndexer(embedder, newListingStore(cfg, executor), 0)
	return usecase.NewPropertySeedUseCase(repo, lookupCache, invalidationBus, logger, usecase.WithListingIndex(listings)), closeAll, nil
}

func openRepository(ctx context.Context, cfg config.Config) (*sql.DB, *postgres.PropertyRepository, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewPropertyRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, repo, nil
}

// openDistributedCache returns nil when Redis is not configured or its URL
// is invalid. A Redis that is down at startup is kept: lookups fall back to
// the local tier until it answers again.
func openDistributedCache(ctx context.Context, cfg config.Config, executor *resilience.Executor, logger *slog.Logger) *rediscache.Cache {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Info("distributed_cache_disabled")
		return nil
	}
	distributed, err := rediscache.Open(rediscache.Config{
		URL:         cfg.RedisURL,
		KeyPrefix:   cfg.RedisKeyPrefix,
		DialTimeout: cfg.RedisDialTimeout,
	}, executor)
	if err != nil {
		logger.Warn("distributed_cache_unavailable", "error", err)
		return nil
	}
	if err := distributed.Ping(ctx); err != nil {
		logger.Warn("distributed_cache_unreachable_at_startup", "error", err)
	}
	return distributed
}

func openBus(cfg config.Config, executor *resilience.Executor, logger *slog.Logger) *nats.Bus {
	if strings.TrimSpace(cfg.NATSURL) == "" {
		logger.Info("invalidation_bus_disabled")
		return nil
	}
	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSInvalidationSubject, nats.Options{
		Name:               "property-voice-agent-" + cfg.InstanceID,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		logger.Warn("invalidation_bus_unavailable", "error", err)
		return nil
	}
	return bus
}

func newRetrievalStore(cfg config.Config, executor *resilience.Executor) *qdrant.Client {
	return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
		qdrant.WithKeywordIndex(cfg.QdrantKeywordEnabled),
		qdrant.WithTimeout(cfg.RetrievalTimeout),
		qdrant.WithExecutor(executor),
	)
}

// newListingStore points at the collection that holds one document per
// property, separate from the knowledge base.
func newListingStore(cfg config.Config, executor *resilience.Executor) *qdrant.Client {
	return qdrant.New(cfg.QdrantURL, cfg.QdrantListingCollection,
		qdrant.WithKeywordIndex(cfg.QdrantKeywordEnabled),
		qdrant.WithTimeout(cfg.RetrievalTimeout),
		qdrant.WithExecutor(executor),
	)
}

func fusionConfig(cfg config.Config, store *qdrant.Client) usecase.FusionConfig {
	return usecase.FusionConfig{
		SearchDepth:    cfg.RAGSearchDepth,
		TopK:           cfg.RAGTopK,
		RRFK:           cfg.RAGFusionRRFK,
		KeywordEnabled: store.KeywordEnabled(),
	}
}

func newIngestUseCase(cfg config.Config, embedder ports.Embedder, store *qdrant.Client, logger *slog.Logger) *usecase.KnowledgeIngestUseCase {
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	return usecase.NewKnowledgeIngestUseCase(chunker, embedder, store, 0, logger)
}

func cacheConfig(cfg config.Config) cache.Config {
	return cache.Config{
		DistributedTTL:  cfg.CacheDistributedTTL,
		LocalTTL:        cfg.CacheLocalTTL,
		AliasTTL:        cfg.CacheAliasTTL,
		LocalMaxEntries: cfg.CacheLocalMaxEntries,
		JanitorInterval: cfg.CacheLocalJanitorPeriod,
		TierTimeout:     cfg.CacheTierTimeout,
	}
}
