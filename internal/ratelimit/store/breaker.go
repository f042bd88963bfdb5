package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/motorland/carmarket/internal/observability"
)

// BreakerStore wraps a Store with a circuit breaker so that a failing
// backend is skipped quickly instead of stalling every request on a
// timeout. Callers see gobreaker.ErrOpenState while the circuit is open.
type BreakerStore struct {
	inner  Store
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// BreakerOption is a functional option for configuring the breaker store.
type BreakerOption func(*BreakerStore)

// WithBreakerLogger sets the logger for the breaker store.
func WithBreakerLogger(logger observability.Logger) BreakerOption {
	return func(s *BreakerStore) {
		s.logger = logger
	}
}

// NewBreakerStore wraps inner with a circuit breaker. The circuit trips
// when at least threshold requests have been observed in the interval and
// half of them failed; it probes again after timeout.
func NewBreakerStore(inner Store, threshold int, timeout time.Duration, opts ...BreakerOption) *BreakerStore {
	s := &BreakerStore{
		inner:  inner,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	thresholdU32 := safeIntToUint32(threshold)

	settings := gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: thresholdU32,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= thresholdU32 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.logger.Warn("rate limit store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// A missing key or a caller-side cancellation is not a
			// backend failure.
			if IsKeyNotFound(err) {
				return true
			}
			return errors.Is(err, context.Canceled)
		},
	}

	s.cb = gobreaker.NewCircuitBreaker(settings)
	return s
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// State returns the current state of the circuit breaker.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// Get implements Store.
func (s *BreakerStore) Get(ctx context.Context, key string) (int64, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.Get(ctx, key)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// IncrementWithExpiry implements Store.
func (s *BreakerStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.IncrementWithExpiry(ctx, key, delta, expiration)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// Delete implements Store.
func (s *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.Delete(ctx, key)
	})
	return err
}

// Close implements Store.
func (s *BreakerStore) Close() error {
	return s.inner.Close()
}
