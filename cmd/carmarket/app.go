package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/motorland/carmarket/internal/audit"
	"github.com/motorland/carmarket/internal/auth/session"
	"github.com/motorland/carmarket/internal/auth/token"
	"github.com/motorland/carmarket/internal/cache"
	"github.com/motorland/carmarket/internal/config"
	"github.com/motorland/carmarket/internal/health"
	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/ratelimit"
	"github.com/motorland/carmarket/internal/ratelimit/store"
	"github.com/motorland/carmarket/internal/server/grpcserver"
	"github.com/motorland/carmarket/internal/server/httpserver"
	"github.com/motorland/carmarket/internal/users"
)

// Circuit breaker settings for the redis counter store. A dead redis
// trips the breaker after repeated failures so the limiter fails open
// immediately instead of timing out on every request.
const (
	breakerThreshold = 5
	breakerTimeout   = 30 * time.Second
)

// application holds all application components.
type application struct {
	config      *config.Config
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	auditLogger audit.Logger
	cache       cache.Cache
	redisClient *redis.Client
	limiter     ratelimit.Limiter
	httpServer  *httpserver.Server
	grpcServer  *grpcserver.Server
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics("carmarket")
	}

	tracer := initTracer(cfg, logger)
	auditLogger := initAuditLogger(cfg, logger, metrics)

	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" {
		redisClient = initRedisClient(cfg.Cache.Redis, logger)
	}

	c := initCache(cfg, redisClient, logger, metrics)
	limiter := initLimiter(cfg, redisClient, logger, metrics)

	userSvc, err := users.NewSeededService(cfg.Users)
	if err != nil {
		logger.Fatal("failed to seed users", observability.Error(err))
	}

	tokens, err := token.NewManager(&token.Config{
		Issuer:        cfg.Auth.Issuer,
		AccessSecret:  []byte(cfg.Auth.AccessSecret),
		RefreshSecret: []byte(cfg.Auth.RefreshSecret),
		AccessTTL:     cfg.Auth.AccessTTL.Duration(),
		RefreshTTL:    cfg.Auth.RefreshTTL.Duration(),
	})
	if err != nil {
		logger.Fatal("failed to create token manager", observability.Error(err))
	}

	sessions := session.NewManager(tokens, userSvc, c,
		session.WithLogger(logger),
		session.WithMetrics(metrics),
	)

	checker := health.NewChecker(version)
	checker.RegisterCheck("cache", func(ctx context.Context) error {
		_, err := c.Exists(ctx, "readiness-probe")
		return err
	})

	httpServer := httpserver.New(&cfg.Server, sessions, userSvc, limiter,
		httpserver.WithLogger(logger),
		httpserver.WithMetrics(metrics),
		httpserver.WithAuditLogger(auditLogger),
		httpserver.WithHealthChecker(checker),
	)

	var grpcServer *grpcserver.Server
	if cfg.GRPC.Enabled {
		grpcServer = grpcserver.New(&cfg.GRPC, sessions, userSvc, limiter,
			grpcserver.WithLogger(logger),
			grpcserver.WithMetrics(metrics),
			grpcserver.WithAuditLogger(auditLogger),
		)
	}

	return &application{
		config:      cfg,
		metrics:     metrics,
		tracer:      tracer,
		auditLogger: auditLogger,
		cache:       c,
		redisClient: redisClient,
		limiter:     limiter,
		httpServer:  httpServer,
		grpcServer:  grpcServer,
	}
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  "carmarket",
		Enabled:      cfg.Observability.TracingEnabled,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		SamplingRate: cfg.Observability.SamplingRate,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}
	return tracer
}

// initAuditLogger builds the audit logger from the configured output.
func initAuditLogger(cfg *config.Config, logger observability.Logger, metrics *observability.Metrics) audit.Logger {
	if !cfg.Audit.Enabled {
		return audit.NopLogger()
	}

	opts := []audit.Option{
		audit.WithLogger(logger),
		audit.WithMetrics(metrics),
	}

	switch cfg.Audit.Output {
	case "", "stdout":
		opts = append(opts, audit.WithWriter(os.Stdout))
	case "stderr":
		opts = append(opts, audit.WithWriter(os.Stderr))
	default:
		f, err := os.OpenFile(cfg.Audit.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Fatal("failed to open audit log file", observability.Error(err))
		}
		opts = append(opts, audit.WithWriter(f))
	}

	return audit.NewLogger(opts...)
}

// initRedisClient connects to redis. The same client backs both the
// session cache and the rate limit counters.
func initRedisClient(cfg *config.RedisConfig, logger observability.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.Fatal("invalid redis URL", observability.Error(err))
	}

	if cfg.PoolSize > 0 {
		redisOpts.PoolSize = cfg.PoolSize
	}
	if cfg.ConnectTimeout.Duration() > 0 {
		redisOpts.DialTimeout = cfg.ConnectTimeout.Duration()
	}
	if cfg.ReadTimeout.Duration() > 0 {
		redisOpts.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout.Duration() > 0 {
		redisOpts.WriteTimeout = cfg.WriteTimeout.Duration()
	}

	return redis.NewClient(redisOpts)
}

// initCache builds the session cache.
func initCache(cfg *config.Config, redisClient *redis.Client, logger observability.Logger, metrics *observability.Metrics) cache.Cache {
	var cacheOpts []cache.Option
	if metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(metrics))
	}

	if redisClient != nil {
		return cache.NewRedisCacheWithClient(redisClient, logger, cacheOpts...)
	}
	return cache.NewMemoryCache(logger, cacheOpts...)
}

// initLimiter builds the rate limiter. Redis counters sit behind a
// circuit breaker; the in-memory store does not need one.
func initLimiter(cfg *config.Config, redisClient *redis.Client, logger observability.Logger, metrics *observability.Metrics) ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		logger.Info("rate limiting disabled")
		return ratelimit.NewNoopLimiter()
	}

	var counters store.Store
	if redisClient != nil {
		counters = store.NewBreakerStore(
			store.NewRedisStore(redisClient, logger),
			breakerThreshold, breakerTimeout,
			store.WithBreakerLogger(logger),
		)
	} else {
		counters = store.NewMemoryStore()
	}

	opts := []ratelimit.Option{
		ratelimit.WithTiers(ratelimit.TiersFromConfig(&cfg.RateLimit)),
		ratelimit.WithLogger(logger),
	}
	if metrics != nil {
		opts = append(opts, ratelimit.WithMetrics(metrics))
	}

	return ratelimit.NewFixedWindowLimiter(counters, opts...)
}
