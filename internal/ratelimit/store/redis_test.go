package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorland/carmarket/internal/observability"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, observability.NopLogger()), mr
}

func TestRedisStoreGetMissing(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, IsKeyNotFound(err))
}

func TestRedisStoreIncrementWithExpiry(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	got, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	// The expiration is set once, when the key is created.
	ttl := mr.TTL("k")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisStoreCounterExpires(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "window", 1, time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = s.Get(ctx, "window")
	assert.True(t, IsKeyNotFound(err))

	got, err := s.IncrementWithExpiry(ctx, "window", 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestRedisStoreDelete(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.True(t, IsKeyNotFound(err))
}
