package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unir/products-search/internal/cache"
	"github.com/unir/products-search/internal/config"
	"github.com/unir/products-search/internal/engine"
	"github.com/unir/products-search/internal/engine/breaker"
	esengine "github.com/unir/products-search/internal/engine/elasticsearch"
	"github.com/unir/products-search/internal/engine/memory"
	"github.com/unir/products-search/internal/event"
	handler "github.com/unir/products-search/internal/handler/http"
	"github.com/unir/products-search/internal/service"
	"github.com/unir/products-search/pkg/database"
	"github.com/unir/products-search/pkg/health"
	pkgkafka "github.com/unir/products-search/pkg/kafka"
	"github.com/unir/products-search/pkg/middleware"
	"github.com/unir/products-search/pkg/tracing"
)

// Version is reported as the service.version trace attribute.
var Version = "dev"

// App wires together all dependencies and runs the products service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	producer       *pkgkafka.Producer
	redisClient    *redis.Client
	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	shutdownTracer, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		shutdownTracer: shutdownTracer,
	}
	healthHandler := health.NewHandler()

	eng, err := a.newEngine(ctx, healthHandler)
	if err != nil {
		_ = a.closeAll()
		return nil, err
	}

	var publisher event.Publisher = event.NopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	events := event.NewProducer(publisher, logger)

	// Build the service layer.
	productService := service.NewProductService(eng, events, cfg.ServerFullAddress, logger)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(productService, healthHandler, cors, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// newEngine builds the engine chain: backend, metrics, circuit breaker and,
// when enabled, the facet cache.
func (a *App) newEngine(ctx context.Context, healthHandler *health.Handler) (engine.ProductEngine, error) {
	cfg := a.cfg

	var (
		base    engine.ProductEngine
		backend string
	)
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		esEng, err := esengine.New(ctx, esengine.Config{
			Addresses: cfg.ElasticsearchURLs,
			Username:  cfg.ElasticsearchUsername,
			Password:  cfg.ElasticsearchPassword,
			Index:     cfg.ElasticsearchIndex,
			Insecure:  cfg.ElasticsearchInsecure,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		healthHandler.Register("elasticsearch", esEng.Ping)
		base, backend = esEng, config.EngineElasticsearch
		a.logger.Info("elasticsearch search engine initialized",
			slog.Any("urls", cfg.ElasticsearchURLs),
			slog.String("index", esEng.IndexName()),
		)
	default:
		base, backend = memory.New(), config.EngineMemory
		a.logger.Info("in-memory search engine initialized")
	}

	var eng engine.ProductEngine = engine.Instrument(base, backend)

	eng = breaker.Wrap(eng, breaker.Config{
		Name:         backend,
		MaxRequests:  cfg.BreakerMaxRequests,
		Interval:     cfg.BreakerInterval,
		Timeout:      cfg.BreakerTimeout,
		FailureRatio: cfg.BreakerFailureRatio,
		MinRequests:  cfg.BreakerMinRequests,
	}, a.logger)

	if cfg.CacheEnabled {
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Host = cfg.RedisHost
		redisCfg.Port = cfg.RedisPort
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB

		client, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("init facet cache: %w", err)
		}
		a.redisClient = client

		cached := cache.Wrap(eng, client, cfg.CacheTTL, a.logger)
		healthHandler.Register("redis", cached.Ping)
		eng = cached
		a.logger.Info("facet cache enabled",
			slog.String("redis", redisCfg.Addr()),
			slog.Duration("ttl", cfg.CacheTTL),
		)
	}

	return eng, nil
}

// Handler returns the HTTP handler serving all routes.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.closeAll())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	errs = append(errs, a.closeAll())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeAll releases the Kafka producer, Redis client and tracer provider.
func (a *App) closeAll() error {
	var errs []error

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracer(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
