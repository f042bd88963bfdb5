package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/ratelimit/store"
)

// counterKeyPrefix namespaces rate limit counters in the shared store.
const counterKeyPrefix = "rate-limit"

// expiryBuffer is added to counter expirations to absorb clock skew
// between instances.
const expiryBuffer = time.Second

// FixedWindowLimiter implements Limiter using the fixed window algorithm.
// Each tier counts requests in aligned windows; the counter key changes
// when the window rolls over, so stale counters simply expire.
type FixedWindowLimiter struct {
	store   store.Store
	logger  observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu    sync.RWMutex
	tiers []Tier
}

// Option is a functional option for configuring the limiter.
type Option func(*FixedWindowLimiter)

// WithTiers overrides the default tiers.
func WithTiers(tiers []Tier) Option {
	return func(l *FixedWindowLimiter) {
		l.tiers = tiers
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *FixedWindowLimiter) {
		l.logger = logger
	}
}

// WithMetrics attaches metrics recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *FixedWindowLimiter) {
		l.metrics = m
	}
}

// WithClock sets the time source. Used by tests to control windows.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindowLimiter) {
		l.now = now
	}
}

// NewFixedWindowLimiter creates a fixed window limiter backed by s.
func NewFixedWindowLimiter(s store.Store, opts ...Option) *FixedWindowLimiter {
	l := &FixedWindowLimiter{
		store:  s,
		tiers:  DefaultTiers(),
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	sort.Slice(l.tiers, func(i, j int) bool {
		return l.tiers[i].Window < l.tiers[j].Window
	})

	return l
}

// SetTiers swaps the tier definitions at runtime. Requests already in
// flight finish against the old tiers; new windows use the new limits.
func (l *FixedWindowLimiter) SetTiers(tiers []Tier) {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Window < sorted[j].Window
	})

	l.mu.Lock()
	l.tiers = sorted
	l.mu.Unlock()

	l.logger.Info("rate limit tiers updated",
		observability.Int("tiers", len(sorted)))
}

// Allow implements Limiter. The counter is incremented before the limit
// check, so concurrent requests racing into the same window can never
// all observe a count below the limit.
func (l *FixedWindowLimiter) Allow(ctx context.Context, actorKey string, tierNames ...string) (*Result, error) {
	now := l.now()

	var tightest *Result

	for _, tier := range l.selectTiers(tierNames) {
		windowStart := now.Truncate(tier.Window)
		resetTime := windowStart.Add(tier.Window)
		key := counterKey(actorKey, tier.Name, windowStart)

		count, err := l.store.IncrementWithExpiry(ctx, key, 1, tier.Window+expiryBuffer)
		if err != nil {
			// Fail open: a broken counter store must not take down
			// the request path.
			l.logger.Warn("rate limit store unavailable, allowing request",
				observability.String("actor", actorKey),
				observability.String("tier", tier.Name),
				observability.Error(err),
			)
			return &Result{Allowed: true}, nil
		}

		remaining := tier.Max - int(count)
		if remaining < 0 {
			remaining = 0
		}

		result := &Result{
			Allowed:   count <= int64(tier.Max),
			Tier:      tier.Name,
			Limit:     tier.Max,
			Remaining: remaining,
			ResetTime: resetTime,
		}

		if !result.Allowed {
			result.RetryAfter = resetTime.Sub(now)
			if result.RetryAfter < 0 {
				result.RetryAfter = 0
			}

			if l.metrics != nil {
				l.metrics.RecordRateLimitHit(tier.Name)
			}

			l.logger.Debug("rate limit exceeded",
				observability.String("actor", actorKey),
				observability.String("tier", tier.Name),
				observability.Int("limit", tier.Max),
			)

			return result, nil
		}

		if tightest == nil || result.Remaining < tightest.Remaining {
			tightest = result
		}
	}

	if tightest == nil {
		return &Result{Allowed: true}, nil
	}

	return tightest, nil
}

// selectTiers resolves tier names to configured tiers, preserving the
// window-ascending order. Unknown names are skipped.
func (l *FixedWindowLimiter) selectTiers(names []string) []Tier {
	l.mu.RLock()
	tiers := l.tiers
	l.mu.RUnlock()

	if len(names) == 0 {
		return tiers
	}

	selected := make([]Tier, 0, len(names))
	for _, tier := range tiers {
		for _, name := range names {
			if tier.Name == name {
				selected = append(selected, tier)
				break
			}
		}
	}

	return selected
}

// Reset clears the actor's counters in the current windows. Used by tests
// and administrative tooling.
func (l *FixedWindowLimiter) Reset(ctx context.Context, actorKey string) error {
	now := l.now()

	l.mu.RLock()
	tiers := l.tiers
	l.mu.RUnlock()

	for _, tier := range tiers {
		windowStart := now.Truncate(tier.Window)
		key := counterKey(actorKey, tier.Name, windowStart)
		if err := l.store.Delete(ctx, key); err != nil {
			return err
		}
	}

	return nil
}

// counterKey builds the store key for one actor, tier, and window.
func counterKey(actorKey, tier string, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", counterKeyPrefix, actorKey, tier, windowStart.UnixMilli())
}
