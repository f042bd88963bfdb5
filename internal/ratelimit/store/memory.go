package store

import (
	"context"
	"sync"
	"time"
)

// cleanupInterval is how often expired counters are swept.
const cleanupInterval = time.Minute

type counter struct {
	value      int64
	expiration time.Time
}

func (c counter) expired(now time.Time) bool {
	return !c.expiration.IsZero() && now.After(c.expiration)
}

// MemoryStore implements Store using in-memory storage. Suitable for
// single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]counter

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]counter),
		done:     make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || c.expired(time.Now()) {
		delete(s.counters, key)
		return 0, &ErrKeyNotFound{Key: key}
	}

	return c.value, nil
}

// IncrementWithExpiry implements Store.
func (s *MemoryStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || c.expired(now) {
		c = counter{}
		if expiration > 0 {
			c.expiration = now.Add(expiration)
		}
	}

	c.value += delta
	s.counters[key] = c

	return c.value, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	delete(s.counters, key)
	s.mu.Unlock()

	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	for key, c := range s.counters {
		if c.expired(now) {
			delete(s.counters, key)
		}
	}
	s.mu.Unlock()
}
