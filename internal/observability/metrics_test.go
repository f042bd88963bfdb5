package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test_metrics")
	require.NotNil(t, m)
	assert.NotNil(t, m.Registry())
}

func TestNewMetricsDefaultNamespace(t *testing.T) {
	t.Parallel()

	m := NewMetrics("")
	require.NotNil(t, m)
}

func TestMetricsRecording(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test_recording")

	m.RecordRequest("http", "/auth/login", 200, 15*time.Millisecond)
	m.RecordRequest("grpc", "/carmarket.v1.AuthService/Login", 429, time.Millisecond)
	m.IncActiveRequests()
	m.DecActiveRequests()
	m.RecordAuthFailure("unauthorized")
	m.RecordRateLimitHit("short")
	m.RecordSessionEvent("login", "success")
	m.RecordCacheOp("get", "hit", time.Millisecond)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	assert.True(t, names["test_recording_requests_total"])
	assert.True(t, names["test_recording_auth_failures_total"])
	assert.True(t, names["test_recording_rate_limit_hits_total"])
	assert.True(t, names["test_recording_session_events_total"])
	assert.True(t, names["test_recording_cache_operations_total"])
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test_handler")
	m.RecordRequest("http", "/api/v1/cars", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_handler_requests_total")
}
