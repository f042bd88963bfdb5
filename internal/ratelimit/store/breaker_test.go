package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore always fails, standing in for an unreachable backend.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) IncrementWithExpiry(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func (failingStore) Close() error { return nil }

func TestBreakerStorePassesThrough(t *testing.T) {
	t.Parallel()

	inner := NewMemoryStore()
	t.Cleanup(func() { _ = inner.Close() })

	s := NewBreakerStore(inner, 5, time.Minute)
	ctx := context.Background()

	got, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	require.NoError(t, s.Delete(ctx, "k"))
}

func TestBreakerStoreKeyNotFoundIsNotFailure(t *testing.T) {
	t.Parallel()

	inner := NewMemoryStore()
	t.Cleanup(func() { _ = inner.Close() })

	s := NewBreakerStore(inner, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := s.Get(ctx, "missing")
		assert.True(t, IsKeyNotFound(err))
	}

	assert.Equal(t, gobreaker.StateClosed, s.State())
}

func TestBreakerStoreOpensOnRepeatedFailures(t *testing.T) {
	t.Parallel()

	s := NewBreakerStore(failingStore{}, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	}

	assert.Equal(t, gobreaker.StateOpen, s.State())

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
