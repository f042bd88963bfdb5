package cache

import (
	"context"
	"sync"
	"time"

	"github.com/motorland/carmarket/internal/observability"
)

// memoryCleanupInterval is how often expired entries are swept.
const memoryCleanupInterval = time.Minute

// memoryCache implements an in-memory cache for development and tests.
type memoryCache struct {
	logger observability.Logger
	opts   *options

	mu    sync.RWMutex
	items map[string]memoryEntry

	stopCh    chan struct{}
	closeOnce sync.Once
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func newMemoryCache(logger observability.Logger, opts *options) *memoryCache {
	c := &memoryCache{
		logger: logger,
		opts:   opts,
		items:  make(map[string]memoryEntry),
		stopCh: make(chan struct{}),
	}

	go c.cleanupLoop()

	logger.Info("memory cache initialized")
	return c
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(logger observability.Logger, opts ...Option) Cache {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return newMemoryCache(logger, o)
}

// Get implements Cache.
func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	start := time.Now()

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || entry.expired(time.Now()) {
		c.opts.recordOp("get", "miss", start)
		return nil, ErrCacheMiss
	}

	c.opts.recordOp("get", "hit", start)

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set implements Cache.
func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()

	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = memoryEntry{value: stored, expiresAt: expiresAt}
	c.mu.Unlock()

	c.opts.recordOp("set", "success", start)
	return nil
}

// Delete implements Cache.
func (c *memoryCache) Delete(_ context.Context, key string) error {
	start := time.Now()

	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()

	c.opts.recordOp("delete", "success", start)
	return nil
}

// Exists implements Cache.
func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	return ok && !entry.expired(time.Now()), nil
}

// Close implements Cache.
func (c *memoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	return nil
}

func (c *memoryCache) cleanupLoop() {
	ticker := time.NewTicker(memoryCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *memoryCache) cleanup() {
	now := time.Now()

	c.mu.Lock()
	for key, entry := range c.items {
		if entry.expired(now) {
			delete(c.items, key)
		}
	}
	c.mu.Unlock()
}
