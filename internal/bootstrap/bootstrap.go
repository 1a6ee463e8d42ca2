package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpadapter "github.com/daehwan-dev/policy-assistant/internal/adapters/http"
	"github.com/daehwan-dev/policy-assistant/internal/config"
	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
	"github.com/daehwan-dev/policy-assistant/internal/core/usecase"
	"github.com/daehwan-dev/policy-assistant/internal/infrastructure/cache"
	"github.com/daehwan-dev/policy-assistant/internal/infrastructure/llm/solar"
	natsqueue "github.com/daehwan-dev/policy-assistant/internal/infrastructure/queue/nats"
	"github.com/daehwan-dev/policy-assistant/internal/infrastructure/repository/postgres"
	"github.com/daehwan-dev/policy-assistant/internal/infrastructure/resilience"
	"github.com/daehwan-dev/policy-assistant/internal/infrastructure/sparse"
	"github.com/daehwan-dev/policy-assistant/internal/infrastructure/vector/qdrant"
	"github.com/daehwan-dev/policy-assistant/internal/infrastructure/websearch/tavily"
	"github.com/daehwan-dev/policy-assistant/internal/observability/logging"
	"github.com/daehwan-dev/policy-assistant/internal/observability/metrics"
)

// App holds the wired object graph. Sweeper runs once Start is called and
// stops with the context passed to it.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Handler http.Handler

	sweeper *cache.Sweeper
	sparse  *sparse.Index
	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.New("policy-assistant", cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	policyRepo := postgres.NewPolicyRepository(db)
	if err := policyRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	publisher, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{}, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init usage-event publisher: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultOptions(), logger)
	vectorStore := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.VectorTimeout)
	solarClient := solar.New(cfg.SolarURL, cfg.SolarAPIKey, cfg.SolarModel, cfg.EmbedModel, cfg.LLMTimeout, executor)
	webSearcher := tavily.New(cfg.TavilyURL, cfg.TavilyAPIKey, cfg.WebSearchTimeout)

	searchConfig := searchConfigFrom(cfg)
	sparseIndex := sparse.NewIndex(vectorStore, searchConfig, logger)

	chatCache := cache.NewChatCache(cfg.MaxHistoryTurns, cfg.CacheTTL)
	contextCache := cache.NewPolicyContextCache(cfg.CacheTTL)
	sweeper := cache.NewSweeper(chatCache, contextCache, cfg.CacheSweepEvery, logger)

	promMetrics := metrics.New("policy-assistant", metrics.CacheSizes{
		ChatSessions:   chatCache.Len,
		PolicyContexts: func() int { return contextCache.Stats().Sessions },
		CachedDocs:     func() int { return contextCache.Stats().Documents },
	})

	initUC := usecase.NewInitPolicyUseCase(policyRepo, vectorStore, contextCache, cfg.MaxContextDocs, logger)
	chatUC := usecase.NewChatUseCase(usecase.ChatDeps{
		Contexts:      contextCache,
		History:       chatCache,
		Model:         solarClient,
		Web:           webSearcher,
		Events:        publisher,
		WebMaxResults: cfg.WebSearchMaxResults,
		WebTimeout:    cfg.WebSearchTimeout,
		LLMTimeout:    cfg.LLMTimeout,
		Logger:        logger,
	})
	cleanupUC := usecase.NewCleanupUseCase(chatCache, contextCache, logger)
	searchUC := usecase.NewSearchUseCase(usecase.SearchDeps{
		Embedder:   solarClient,
		Vectors:    vectorStore,
		Sparse:     sparseIndex,
		Policies:   policyRepo,
		Web:        webSearcher,
		Events:     publisher,
		Config:     searchConfig,
		WebTimeout: cfg.WebSearchTimeout,
		Logger:     logger,
	})

	router := httpadapter.NewRouter(httpadapter.RouterDeps{
		Init:    initUC,
		Chat:    chatUC,
		Cleanup: cleanupUC,
		Search:  searchUC,
		WarmSparse: func(r *http.Request) error {
			start := time.Now()
			if err := sparseIndex.EnsureBuilt(r.Context()); err != nil {
				return err
			}
			promMetrics.RecordBM25Build(time.Since(start))
			return nil
		},
		CacheStats: func() httpadapter.CacheStats {
			stats := contextCache.Stats()
			return httpadapter.CacheStats{
				ChatSessions:    chatCache.Len(),
				PolicyContexts:  stats.Sessions,
				CachedDocuments: stats.Documents,
			}
		},
		Metrics:        promMetrics,
		Logger:         logger,
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxInFlight:    cfg.APIMaxInFlight,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: promMetrics,
		Handler: router.Handler(),
		sweeper: sweeper,
		sparse:  sparseIndex,
		closeFn: func() {
			publisher.Close()
			_ = db.Close()
		},
	}, nil
}

// Start launches the background workers: the cache TTL sweeper and a
// best-effort sparse-index pre-warm so the first search does not pay the
// build cost.
func (a *App) Start(ctx context.Context) {
	go a.sweeper.Run(ctx)
	go func() {
		start := time.Now()
		if err := a.sparse.EnsureBuilt(ctx); err != nil {
			a.Logger.Warn("sparse_index_prewarm_failed", "error", err)
			return
		}
		a.Metrics.RecordBM25Build(time.Since(start))
	}()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func searchConfigFrom(cfg config.Config) domain.SearchConfig {
	sc := domain.DefaultSearchConfig()
	if cfg.ScoreThreshold > 0 {
		sc.DefaultScoreThreshold = cfg.ScoreThreshold
	}
	if cfg.CandidatesPerSource > 0 {
		sc.CandidatesPerSource = cfg.CandidatesPerSource
	}
	if cfg.FinalLimit > 0 {
		sc.FinalLimit = cfg.FinalLimit
	}
	if cfg.FusionMode != "" {
		sc.FusionMode = domain.FusionMode(cfg.FusionMode)
	}
	if cfg.RRFK > 0 {
		sc.RRFK = cfg.RRFK
	}
	if cfg.DenseWeight > 0 {
		sc.DenseWeight = cfg.DenseWeight
	}
	if cfg.SparseWeight > 0 {
		sc.SparseWeight = cfg.SparseWeight
	}
	if cfg.SparseMinScore > 0 {
		sc.SparseMinScore = cfg.SparseMinScore
	}
	if cfg.FallbackMinResults > 0 {
		sc.WebSearchTriggerCount = cfg.FallbackMinResults
	}
	if cfg.FallbackMinTopScore > 0 {
		sc.WebSearchTriggerScore = cfg.FallbackMinTopScore
	}
	if cfg.WebSearchMaxResults > 0 {
		sc.WebSearchMaxResults = cfg.WebSearchMaxResults
	}
	return sc
}
