// Package ratelimit provides tiered fixed-window rate limiting keyed by
// the acting user or client address.
package ratelimit

import (
	"context"
	"sort"
	"time"

	"github.com/motorland/carmarket/internal/config"
)

// Tier names for the built-in limit tiers.
const (
	TierShort  = "short"
	TierMedium = "medium"
	TierLong   = "long"
)

// Tier is a single rate limit tier. Every request is counted against all
// configured tiers; the tier with the shortest window is checked first.
type Tier struct {
	// Name identifies the tier in counter keys and metrics.
	Name string

	// Window is the fixed window duration.
	Window time.Duration

	// Max is the maximum number of requests allowed per window.
	Max int
}

// DefaultTiers returns the built-in tiers: a short burst guard, a medium
// sustained-rate guard, and a long per-minute ceiling.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: TierShort, Window: time.Second, Max: 3},
		{Name: TierMedium, Window: 10 * time.Second, Max: 20},
		{Name: TierLong, Window: time.Minute, Max: 100},
	}
}

// TiersFromConfig builds the tier list from configuration, starting from
// the defaults and overriding any tier configured by name. Unknown names
// are added as extra tiers. The result is sorted by window ascending.
func TiersFromConfig(cfg *config.RateLimitConfig) []Tier {
	tiers := DefaultTiers()

	if cfg != nil {
		known := make(map[string]int, len(tiers))
		for i, tier := range tiers {
			known[tier.Name] = i
		}

		for name, tc := range cfg.Tiers {
			tier := Tier{Name: name, Window: tc.Window.Duration(), Max: tc.Max}
			if i, ok := known[name]; ok {
				tiers[i] = tier
			} else {
				tiers = append(tiers, tier)
			}
		}
	}

	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Window < tiers[j].Window
	})

	return tiers
}

// Result represents the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Tier is the name of the tier this result describes. For an allowed
	// request it is the tier closest to exhaustion; for a rejected one it
	// is the tier that was exceeded.
	Tier string

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetTime is when the current window ends.
	ResetTime time.Time

	// RetryAfter is how long to wait before retrying. Zero when allowed.
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, with
// a floor of one second. Rounding down would tell a client to retry
// inside the same window it was just rejected from.
func (r *Result) RetryAfterSeconds() int {
	secs := int((r.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter checks whether a request from the given actor is allowed.
type Limiter interface {
	// Allow counts a request for the actor against the named tiers and
	// reports the outcome. With no tier names, every configured tier is
	// applied. Implementations must not fail the request when the
	// backing store is unavailable.
	Allow(ctx context.Context, actorKey string, tierNames ...string) (*Result, error)
}

// NoopLimiter allows every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that always allows.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(_ context.Context, _ string, _ ...string) (*Result, error) {
	return &Result{Allowed: true}, nil
}
