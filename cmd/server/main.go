package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ayash-Bera/querygen/internal/api/handlers"
	"github.com/Ayash-Bera/querygen/internal/cache"
	"github.com/Ayash-Bera/querygen/internal/config"
	"github.com/Ayash-Bera/querygen/internal/database"
	"github.com/Ayash-Bera/querygen/internal/dedup"
	"github.com/Ayash-Bera/querygen/internal/enhancer"
	"github.com/Ayash-Bera/querygen/internal/health"
	"github.com/Ayash-Bera/querygen/internal/middleware"
	"github.com/Ayash-Bera/querygen/internal/migration"
	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/optimizer"
	"github.com/Ayash-Bera/querygen/internal/repository"
	"github.com/Ayash-Bera/querygen/internal/scoring"
	"github.com/Ayash-Bera/querygen/internal/services"
	"github.com/Ayash-Bera/querygen/internal/templates"
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.InitLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbManager, err := database.NewManager(&database.Config{
		DatabaseURL:  cfg.Database.URL,
		RedisURL:     cfg.Redis.URL,
		RedisEnabled: cfg.Redis.Enabled,
		LogLevel:     cfg.LogLevel,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if _, err := migration.NewRunner(dbManager.DB, logger).RunMigrations(ctx, migration.Files()); err != nil {
		logger.WithError(err).Fatal("Database migrations failed")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router, sweepers, err := buildRouter(ctx, cfg, dbManager, registry, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build services")
	}
	cache.StartSweeper(ctx, cfg.Optimizer.SweepInterval, logger, sweepers)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exited")
}

// newStore prefers Redis and falls back to process memory.
func newStore(dbManager *database.Manager, prefix string, capacity int, ttl time.Duration, logger *logrus.Logger) cache.Store {
	if dbManager.Redis != nil {
		return database.NewRedisStore(dbManager.Redis, prefix, ttl, logger)
	}
	return cache.NewMemoryStore(capacity, ttl, nil)
}

func buildProvider(cfg *config.Config, logger *logrus.Logger) *enhancer.BreakerProvider {
	var inner enhancer.Provider
	switch cfg.Provider.Kind {
	case config.ProviderHTTP:
		inner = enhancer.NewHTTPProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey, logger)
	case config.ProviderOpenAI:
		inner = enhancer.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.Model, logger)
	default:
		return nil
	}
	return enhancer.NewBreakerProvider(inner, cfg.Provider.BreakerFailures, cfg.Provider.BreakerCooldown, logger)
}

func buildRouter(ctx context.Context, cfg *config.Config, dbManager *database.Manager, registry *prometheus.Registry, logger *logrus.Logger) (*gin.Engine, map[string]cache.Sweeper, error) {
	repos := repository.NewRepositoryManager(dbManager.DB)

	templateStore := newStore(dbManager, database.TemplateCachePrefix, cfg.Optimizer.CacheCapacity, cfg.Generation.TemplateCacheTTL, logger)
	aiStore := newStore(dbManager, database.AICachePrefix, cfg.Optimizer.CacheCapacity, cfg.Optimizer.AICacheTTL, logger)
	httpStore := newStore(dbManager, database.HTTPCachePrefix, cfg.Optimizer.CacheCapacity, cfg.Optimizer.HTTPCacheTTL, logger)

	engine := templates.NewEngine(repos.Template, templateStore, logger, templates.Options{
		CacheTTL:     cfg.Generation.TemplateCacheTTL,
		MaxTemplates: cfg.Generation.MaxTemplates,
	})
	if seeded, err := engine.EnsureSeeded(ctx); err != nil {
		return nil, nil, err
	} else if seeded > 0 {
		logger.WithField("templates", seeded).Info("Seeded built-in templates")
	}

	scorer, err := scoring.NewScorer(scoring.Weights{
		Relevance:  cfg.Scoring.RelevanceWeight,
		Diversity:  cfg.Scoring.DiversityWeight,
		Complexity: cfg.Scoring.ComplexityWeight,
	}, cfg.Scoring.MinScore)
	if err != nil {
		return nil, nil, err
	}

	deduplicator, err := dedup.New(dedup.Options{
		Method:              dedup.Method(cfg.Dedup.Method),
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		KeepHighestScored:   cfg.Dedup.KeepHighestScored,
	})
	if err != nil {
		return nil, nil, err
	}

	optMetrics := optimizer.NewMetrics(registry)
	probes := []health.Probe{health.DatabaseProbe(dbManager)}
	if dbManager.Redis != nil {
		probes = append(probes, health.RedisProbe(dbManager))
	}

	deps := services.Dependencies{
		Templates:          engine,
		Scorer:             scorer,
		Deduplicator:       deduplicator,
		Queries:            repos.GeneratedQuery,
		PerformanceLogs:    repos.PerformanceLog,
		Metrics:            services.NewMetrics(registry),
		PersistConcurrency: cfg.Generation.PersistConcurrency,
	}

	if provider := buildProvider(cfg, logger); provider != nil {
		opt := optimizer.New(aiStore, optimizer.Options{
			CacheTTL:     cfg.Optimizer.AICacheTTL,
			MaxBatchSize: cfg.Optimizer.MaxBatchSize,
			BatchTimeout: cfg.Optimizer.BatchTimeout,
			Retry: optimizer.RetryConfig{
				MaxRetries:  cfg.Optimizer.MaxRetries,
				Delay:       cfg.Optimizer.RetryDelay,
				CallTimeout: cfg.Optimizer.CallTimeout,
			},
		}, optMetrics, logger)

		deps.Enhancer = enhancer.NewService(provider, opt, logger, enhancer.Options{
			TargetCount:    cfg.Generation.TargetCount,
			DiversityBoost: cfg.Generation.DiversityBoost,
			Temperature:    cfg.Provider.Temperature,
			MaxTokens:      cfg.Provider.MaxTokens,
			CacheTTL:       cfg.Optimizer.AICacheTTL,
			BatchRequests:  cfg.Optimizer.BatchAICalls,
		})
		probes = append(probes, health.BreakerProbe(provider.Name(), provider.State))
		logger.WithField("provider", provider.Name()).Info("AI enhancement provider configured")
	}

	service := services.NewGenerationService(deps, logger)
	checker := health.NewHealthChecker(logger, 5*time.Second, probes...)
	checker.CheckAll(ctx)
	if cfg.Server.HealthInterval > 0 {
		go checker.PeriodicHealthCheck(ctx, cfg.Server.HealthInterval)
	}
	limiter := optimizer.NewRateLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window, nil, optMetrics)

	handler := handlers.NewGenerationHandler(service, engine, checker, models.GenerationOptions{
		MaxQueries:          cfg.Generation.MaxQueries,
		MinRelevanceScore:   cfg.Generation.MinRelevanceScore,
		EnableAIEnhancement: cfg.Generation.EnableAIEnhancement,
	}, cfg.Server.RequestTimeout, logger)

	router := handlers.NewRouter(handler, handlers.RouterOptions{
		Identity:      middleware.HeaderIdentity{},
		RateLimit:     middleware.RateLimit(limiter, logger),
		ResponseCache: middleware.ResponseCache(httpStore, cfg.Optimizer.HTTPCacheTTL, logger),
		Gatherer:      registry,
	})

	sweepers := map[string]cache.Sweeper{
		"templates":  templateStore,
		"ai":         aiStore,
		"http":       httpStore,
		"rate_limit": limiter,
	}
	return router, sweepers, nil
}
