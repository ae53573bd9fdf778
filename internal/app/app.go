package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-checkout/internal/basket"
	"github.com/utafrali/storefront-checkout/internal/cache"
	"github.com/utafrali/storefront-checkout/internal/checkout"
	"github.com/utafrali/storefront-checkout/internal/client"
	"github.com/utafrali/storefront-checkout/internal/config"
	"github.com/utafrali/storefront-checkout/internal/event"
	handler "github.com/utafrali/storefront-checkout/internal/handler/http"
	"github.com/utafrali/storefront-checkout/internal/identity"
	"github.com/utafrali/storefront-checkout/internal/repository/postgres"
	"github.com/utafrali/storefront-checkout/migrations"
	"github.com/utafrali/storefront-checkout/pkg/database"
	"github.com/utafrali/storefront-checkout/pkg/health"
	"github.com/utafrali/storefront-checkout/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront-checkout/pkg/kafka"
	"github.com/utafrali/storefront-checkout/pkg/tracing"
)

// App wires together all dependencies and runs the checkout service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	merges         *basket.Coordinator
	flows          *checkout.Service
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "storefront-checkout",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	var undo teardown
	undo.add(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer scancel()
		_ = tracerShutdown(sctx)
	})

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}, logger)
	if err != nil {
		return undo.fail(fmt.Errorf("connect to postgres: %w", err))
	}
	undo.add(pool.Close)
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return undo.fail(fmt.Errorf("run migrations: %w", err))
	}
	logger.Info("database migrations completed")

	// Redis
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:         cfg.RedisHost,
		Port:         cfg.RedisPort,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     cfg.RedisPoolSize,
		DialTimeout:  cfg.RedisOpTimeout(),
		ReadTimeout:  cfg.RedisOpTimeout(),
		WriteTimeout: cfg.RedisOpTimeout(),
	})
	if err != nil {
		return undo.fail(fmt.Errorf("connect to redis: %w", err))
	}
	undo.add(func() { _ = redisClient.Close() })
	logger.Info("connected to Redis", slog.String("addr", fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)))

	// Kafka
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	events := event.NewProducer(producer, logger)
	undo.add(func() { _ = producer.Close() })

	// Downstream clients. Each service gets its own breaker so an identity
	// outage does not trip basket calls.
	baseClient := httpclient.New(httpclient.DefaultConfig())
	breaker := func(service string) *httpclient.CircuitBreakerClient {
		cbCfg := httpclient.CircuitBreakerConfig{
			Name:         service,
			MaxRequests:  cfg.CBMaxRequests,
			Interval:     time.Duration(cfg.CBInterval) * time.Second,
			Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
			FailureRatio: cfg.CBFailureRatio,
			MinRequests:  cfg.CBMinRequests,
		}
		return httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
			WithFallback(client.CircuitOpenFallback(service))
	}
	identityClient := client.NewIdentityClient(breaker(client.ServiceIdentity), cfg.IdentityServiceURL)
	basketClient := client.NewBasketClient(breaker(client.ServiceBasket), cfg.BasketServiceURL)
	customerClient := client.NewCustomerClient(breaker(client.ServiceCustomer), cfg.CustomerServiceURL)

	customerCache := cache.NewCustomerCache(redisClient, time.Duration(cfg.CustomerCacheTTL)*time.Second, customerClient.GetCustomer, logger)
	basketCache := cache.NewBasketCache(redisClient, time.Duration(cfg.BasketCacheTTL)*time.Second, basketClient.GetBasket, logger)

	// Identity resolution
	patterns, err := cfg.IdentityPatterns()
	if err != nil {
		return undo.fail(err)
	}
	tokens, err := identity.NewTokenVerifier(cfg.TokenSecret)
	if err != nil {
		return undo.fail(err)
	}
	passwordless, err := identity.NewPasswordless(identityClient, cfg.PasswordlessCallbackURI, cfg.AppOrigin, patterns)
	switch {
	case errors.Is(err, identity.ErrPasswordlessDisabled):
		logger.Info("passwordless login disabled")
		passwordless = nil
	case err != nil:
		return undo.fail(fmt.Errorf("configure passwordless login: %w", err))
	}

	merges := basket.NewCoordinator(basketClient, basketCache, events, cfg.MergeTimeout(), logger)
	resolver := identity.NewResolver(identityClient, basketClient, merges, passwordless, patterns, logger)

	repo := postgres.NewFlowRepository(pool, database.QueryTracer{
		SlowThreshold: time.Duration(cfg.SlowQueryThresholdMs) * time.Millisecond,
		Logger:        logger,
	})

	flows := checkout.NewService(checkout.Dependencies{
		Repo:          repo,
		Resolver:      resolver,
		Sessions:      identityClient,
		Customers:     customerClient,
		Baskets:       basketClient,
		CustomerCache: customerCache,
		BasketCache:   basketCache,
		Events:        events,
		FlowTTL:       cfg.FlowTTL(),
		Logger:        logger,
	})

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	router := handler.NewRouter(flows, healthHandler, logger, handler.RouterConfig{
		CORSOrigins: cfg.CORSAllowedOrigins,
		Environment: cfg.Environment,
		Tokens:      tokens.ReadClaims,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		merges:         merges,
		flows:          flows,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// teardown releases what NewApp acquired, newest first, when a later step
// fails.
type teardown []func()

func (t *teardown) add(release func()) { *t = append(*t, release) }

func (t teardown) fail(err error) (*App, error) {
	for i := len(t) - 1; i >= 0; i-- {
		t[i]()
	}
	return nil, err
}

// Run starts the HTTP server and the expired-flow sweeper and blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go func() {
		defer sweeper.Done()
		a.sweep(sweepCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopSweep()
	sweeper.Wait()

	if err := a.Shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (a *App) sweep(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.flows.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("expired flow sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Shutdown gracefully stops all components in order: HTTP server, pending
// basket merges, tracer, Kafka producer, Redis, PostgreSQL.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Merges started by drained requests may still report failures to Kafka.
	a.merges.Wait()

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
