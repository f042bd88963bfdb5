package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFactor:   0.1,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("persistent")
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return wantErr
	}, nil)

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 4, calls) // initial attempt + 3 retries
}

func TestDoShouldRetryShortCircuits(t *testing.T) {
	t.Parallel()

	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return fatal
	}, &Options{
		ShouldRetry: func(err error) bool { return !errors.Is(err, fatal) },
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastConfig(), func() error {
		return errors.New("never retried")
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoOnRetryCallback(t *testing.T) {
	t.Parallel()

	var attempts []int
	_ = Do(context.Background(), fastConfig(), func() error {
		return errors.New("always fails")
	}, &Options{
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			attempts = append(attempts, attempt)
		},
	})

	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestCalculateBackoffCapped(t *testing.T) {
	t.Parallel()

	got := CalculateBackoff(20, time.Second, 3*time.Second, 0.25)
	assert.LessOrEqual(t, got, 3*time.Second)
}
