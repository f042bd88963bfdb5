package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetMissing(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, IsKeyNotFound(err))
}

func TestMemoryStoreIncrementWithExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	got, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "ephemeral", 1, 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = s.Get(ctx, "ephemeral")
	assert.True(t, IsKeyNotFound(err))

	// An expired counter restarts from zero.
	got, err := s.IncrementWithExpiry(ctx, "ephemeral", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.True(t, IsKeyNotFound(err))

	assert.NoError(t, s.Delete(ctx, "never-existed"))
}

func TestMemoryStoreConcurrentIncrement(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.IncrementWithExpiry(ctx, "shared", 1, time.Minute)
		}()
	}
	wg.Wait()

	value, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines), value)
}

func TestMemoryStoreContextCancelled(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
