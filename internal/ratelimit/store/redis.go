package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/motorland/carmarket/internal/observability"
)

// incrementWithExpiryScript atomically increments a counter and sets the
// expiration only on the call that creates the key.
// KEYS[1] = key
// ARGV[1] = delta
// ARGV[2] = expiration in milliseconds
var incrementWithExpiryScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[1])
	if current == tonumber(ARGV[1]) then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return current
`)

// RedisStore implements Store using Redis. Counters are shared across
// instances, so limits hold for the whole deployment.
type RedisStore struct {
	client *redis.Client
	logger observability.Logger
}

// NewRedisStore creates a Redis-backed store on top of an existing client.
// The caller owns the client lifecycle.
func NewRedisStore(client *redis.Client, logger observability.Logger) *RedisStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, &ErrKeyNotFound{Key: key}
		}
		return 0, err
	}
	return value, nil
}

// IncrementWithExpiry implements Store.
func (s *RedisStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	result, err := incrementWithExpiryScript.Run(ctx, s.client,
		[]string{key}, delta, expiration.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}
	return result, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Close implements Store. The Redis client is owned by the caller and is
// not closed here.
func (s *RedisStore) Close() error {
	return nil
}
