package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthAlwaysHealthy(t *testing.T) {
	t.Parallel()

	c := NewChecker("1.2.3")

	resp := c.Health()
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestReadinessNoChecks(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestReadinessAggregatesChecks(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.RegisterCheck("cache", func(ctx context.Context) error { return nil })
	c.RegisterCheck("directory", func(ctx context.Context) error { return nil })

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusHealthy, resp.Checks["cache"].Status)
}

func TestReadinessFailingCheck(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.RegisterCheck("cache", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	c.RegisterCheck("directory", func(ctx context.Context) error { return nil })

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, StatusUnhealthy, resp.Checks["cache"].Status)
	assert.Equal(t, "connection refused", resp.Checks["cache"].Message)
	assert.Equal(t, StatusHealthy, resp.Checks["directory"].Status)
}

func TestReadinessCheckTimeout(t *testing.T) {
	t.Parallel()

	c := NewChecker("test", WithProbeTimeout(10*time.Millisecond))
	c.RegisterCheck("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
}
