package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/motorland/carmarket/internal/config"
	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/retry"
)

const cacheTracerName = "github.com/motorland/carmarket/internal/cache"

// redisRetryConfig returns the retry configuration for Redis operations.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError checks if the error is retryable (network/connection errors).
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	// Don't retry on cache miss or context errors
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// redisCache implements a Redis-based cache.
type redisCache struct {
	logger observability.Logger
	client *redis.Client
	opts   *options
}

// newRedisCache creates a new Redis cache.
func newRedisCache(cfg *config.RedisConfig, logger observability.Logger, opts *options) (*redisCache, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("%w: redis URL is required", ErrInvalidConfig)
	}

	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}

	if cfg.PoolSize > 0 {
		redisOpts.PoolSize = cfg.PoolSize
	}
	if cfg.ConnectTimeout > 0 {
		redisOpts.DialTimeout = cfg.ConnectTimeout.Duration()
	}
	if cfg.ReadTimeout > 0 {
		redisOpts.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		redisOpts.WriteTimeout = cfg.WriteTimeout.Duration()
	}

	client := redis.NewClient(redisOpts)

	if err := pingRedis(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, err)
	}

	logger.Info("redis cache initialized",
		observability.String("addr", redisOpts.Addr),
		observability.Int("poolSize", redisOpts.PoolSize))

	return &redisCache{
		logger: logger,
		client: client,
		opts:   opts,
	}, nil
}

// NewRedisCacheWithClient wraps an existing Redis client. Used by tests
// and by callers that manage the client lifecycle themselves.
func NewRedisCacheWithClient(client *redis.Client, logger observability.Logger, opts ...Option) Cache {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &redisCache{
		logger: logger,
		client: client,
		opts:   o,
	}
}

// pingRedis tests the Redis connection with a timeout.
func pingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Get retrieves a value from the cache with exponential backoff retry.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()

	var result []byte

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		val, getErr := c.client.Get(ctx, key).Bytes()
		if getErr == nil {
			result = val
		}
		return getErr
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying redis get",
				observability.String("key", key),
				observability.Int("attempt", attempt))
		},
	})

	if err == nil {
		c.opts.recordOp("get", "hit", start)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return result, nil
	}

	if errors.Is(err, redis.Nil) {
		c.opts.recordOp("get", "miss", start)
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	c.opts.recordOp("get", "error", start)
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Error("redis get failed",
		observability.String("key", key),
		observability.Error(err))
	return nil, err
}

// Set stores a value in the cache with exponential backoff retry.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	start := time.Now()

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		return c.client.Set(ctx, key, value, ttl).Err()
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying redis set",
				observability.String("key", key),
				observability.Int("attempt", attempt))
		},
	})

	if err == nil {
		c.opts.recordOp("set", "success", start)
		return nil
	}

	c.opts.recordOp("set", "error", start)
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Error("redis set failed",
		observability.String("key", key),
		observability.Error(err))
	return err
}

// Delete removes a value from the cache with exponential backoff retry.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	ctx, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		return c.client.Del(ctx, key).Err()
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying redis delete",
				observability.String("key", key),
				observability.Int("attempt", attempt))
		},
	})

	if err == nil {
		c.opts.recordOp("delete", "success", start)
		return nil
	}

	c.opts.recordOp("delete", "error", start)
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Error("redis delete failed",
		observability.String("key", key),
		observability.Error(err))
	return err
}

// Exists checks if a key exists in the cache.
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Exists",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	var result int64

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		var existsErr error
		result, existsErr = c.client.Exists(ctx, key).Result()
		return existsErr
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
	})

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return false, err
	}

	span.SetAttributes(attribute.Bool("cache.exists", result > 0))
	return result > 0, nil
}

// Close closes the Redis connection.
func (c *redisCache) Close() error {
	c.logger.Info("redis cache closing")
	return c.client.Close()
}
