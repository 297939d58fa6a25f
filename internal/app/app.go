// Package app wires together all dependencies and runs the search service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketloom/search-service/pkg/health"
	"github.com/marketloom/search-service/pkg/httpclient"
	pkgkafka "github.com/marketloom/search-service/pkg/kafka"

	"github.com/marketloom/search-service/internal/analytics"
	"github.com/marketloom/search-service/internal/cache"
	"github.com/marketloom/search-service/internal/config"
	"github.com/marketloom/search-service/internal/engine"
	esengine "github.com/marketloom/search-service/internal/engine/elasticsearch"
	"github.com/marketloom/search-service/internal/engine/memory"
	"github.com/marketloom/search-service/internal/event"
	handler "github.com/marketloom/search-service/internal/handler/http"
	"github.com/marketloom/search-service/internal/index"
	"github.com/marketloom/search-service/internal/query"
	"github.com/marketloom/search-service/internal/ratelimit"
	"github.com/marketloom/search-service/internal/service"
	"github.com/marketloom/search-service/internal/suggest"
)

// App holds the running components of the service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	manager    *index.Manager
	consumers  []*pkgkafka.Consumer
	producer   *pkgkafka.Producer
	dlq        *pkgkafka.DLQProducer
	recorder   *analytics.Recorder
	redis      *redis.Client
	httpServer *http.Server
}

// New creates an application instance, initializing all dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}

	// Index backend.
	var backend engine.IndexBackend
	switch cfg.Engine {
	case "elasticsearch":
		es, err := esengine.New(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch backend: %w", err)
		}
		backend = es
		logger.Info("elasticsearch backend initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
	default:
		backend = memory.New()
		logger.Info("in-memory backend initialized")
	}

	// Shared stores. Without Redis the cache and rate limiter fall back to
	// in-process stores, which only hold for a single replica.
	var (
		cacheStore   cache.Store
		counterStore ratelimit.CounterStore
	)
	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cacheStore = cache.NewRedisStore(app.redis)
		counterStore = ratelimit.NewRedisStore(app.redis)
		logger.Info("redis stores initialized", slog.String("addr", cfg.RedisAddr))
	} else {
		cacheStore = cache.NewMemoryStore()
		counterStore = ratelimit.NewMemoryStore()
		logger.Warn("redis not configured, using in-process cache and rate limit stores")
	}

	responseCache := cache.New(cacheStore, cfg.CacheTTL, logger)
	limiter := ratelimit.NewLimiter(counterStore, rateRules(cfg), logger)

	app.manager = index.NewManager(backend, responseCache, logger)

	deps := service.Deps{
		Backend:   backend,
		Limiter:   limiter,
		Cache:     responseCache,
		Suggester: suggest.New(backend, logger),
		Index:     app.manager,
		Logger:    logger,
	}

	if cfg.CatalogServiceURL != "" {
		cb := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("catalog"),
			logger,
		)
		deps.Catalog = service.NewCatalogClient(cb, cfg.CatalogServiceURL)
	}

	// Kafka: catalog event consumers in, analytics events out.
	if !cfg.KafkaDisabled {
		app.producer = pkgkafka.NewProducer(pkgkafka.ProducerConfig{Brokers: cfg.KafkaBrokers}, logger)
		app.recorder = analytics.NewRecorder(app.producer, cfg.AnalyticsBufferSize, logger)
		deps.Recorder = app.recorder

		app.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		eventConsumer := event.NewConsumer(app.manager, logger)
		for _, topic := range event.Topics() {
			c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:  cfg.KafkaBrokers,
				GroupID:  cfg.KafkaGroupID,
				Topic:    topic,
				MinBytes: 1,
				MaxBytes: 10e6, // 10 MB
			}, eventConsumer.Handle, logger).WithDLQ(app.dlq)
			app.consumers = append(app.consumers, c)
		}
		logger.Info("kafka initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Int("topic_count", len(event.Topics())),
		)
	} else {
		logger.Warn("kafka disabled, analytics and catalog events are off")
	}

	svc := service.New(service.Config{
		Limits:                query.Limits{DefaultLimit: cfg.DefaultLimit, MaxLimit: cfg.MaxLimit},
		MaxConcurrentSearches: cfg.MaxConcurrentSearches,
		RetryBaseDelay:        cfg.RetryBaseDelay,
	}, deps)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("backend", backend.Health)
	if app.redis != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		})
	}
	if !cfg.KafkaDisabled {
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler.NewRouter(svc, healthHandler, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return app, nil
}

// rateRules maps the configured per-minute budgets onto limiter rules. A
// zero budget leaves the class without a rule, which disables the limit.
func rateRules(cfg *config.Config) map[ratelimit.EndpointClass]ratelimit.Rule {
	rules := make(map[ratelimit.EndpointClass]ratelimit.Rule)
	for class, limit := range map[ratelimit.EndpointClass]int{
		ratelimit.ClassSearch:  cfg.RateLimitSearch,
		ratelimit.ClassSuggest: cfg.RateLimitSuggest,
		ratelimit.ClassTrack:   cfg.RateLimitTrack,
		ratelimit.ClassAdmin:   cfg.RateLimitAdmin,
	} {
		if limit > 0 {
			rules[class] = ratelimit.Rule{Limit: limit, Window: time.Minute}
		}
	}
	return rules
}

// Run starts the HTTP server and Kafka consumers, blocking until the context
// is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	// The index schema is created up front so the first write does not race
	// the first query. A failure is not fatal: the backend may still be
	// starting, and writes ensure the index lazily.
	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.manager.EnsureIndex(ensureCtx); err != nil {
		a.logger.Warn("ensure index at startup failed", slog.String("error", err.Error()))
	}
	cancel()

	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// The recorder drains its buffer before the producer goes away.
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
