// Package cache provides the key-value store backing refresh sessions
// and rate-limit bookkeeping.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/motorland/carmarket/internal/config"
	"github.com/motorland/carmarket/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrConnectionFailed indicates that the cache connection failed.
	ErrConnectionFailed = errors.New("cache connection failed")
)

// Cache is the main interface for the key-value store.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// A TTL of 0 means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Close closes the cache connection.
	Close() error
}

// Option is a functional option for cache construction.
type Option func(*options)

type options struct {
	metrics *observability.Metrics
}

// WithMetrics attaches metrics recording to cache operations.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New creates a new cache based on the configuration.
func New(cfg *config.CacheConfig, logger observability.Logger, opts ...Option) (Cache, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch cfg.Type {
	case "memory", "":
		return newMemoryCache(logger, o), nil
	case "redis":
		return newRedisCache(cfg.Redis, logger, o)
	default:
		return nil, fmt.Errorf("%w: unknown cache type %q", ErrInvalidConfig, cfg.Type)
	}
}

// recordOp records a cache operation when metrics are configured.
func (o *options) recordOp(operation, status string, start time.Time) {
	if o == nil || o.metrics == nil {
		return
	}
	o.metrics.RecordCacheOp(operation, status, time.Since(start))
}
