package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorland/carmarket/internal/auth/session"
	"github.com/motorland/carmarket/internal/auth/token"
	"github.com/motorland/carmarket/internal/cache"
	"github.com/motorland/carmarket/internal/config"
	"github.com/motorland/carmarket/internal/health"
	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/ratelimit"
	"github.com/motorland/carmarket/internal/ratelimit/store"
	"github.com/motorland/carmarket/internal/users"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	tokenCfg := token.DefaultConfig()
	tokenCfg.AccessSecret = []byte("access-secret-for-tests")
	tokenCfg.RefreshSecret = []byte("refresh-secret-for-tests")
	tokens, err := token.NewManager(tokenCfg)
	require.NoError(t, err)

	userSvc, err := users.NewSeededService([]users.SeedAccount{
		{ID: "u-1", Username: "alice", Password: "correct horse", FirstName: "Alice", LastName: "Martin", Role: "user", APIKey: "ak-alice"},
		{ID: "u-2", Username: "admin", Password: "hunter2", FirstName: "Ada", LastName: "Admin", Role: "admin"},
	})
	require.NoError(t, err)

	c := cache.NewMemoryCache(observability.NopLogger())
	t.Cleanup(func() { _ = c.Close() })

	sessions := session.NewManager(tokens, userSvc, c)

	counters := store.NewMemoryStore()
	t.Cleanup(func() { _ = counters.Close() })

	// A frozen clock keeps every request inside one window, so the
	// limit assertions cannot race the wall clock.
	frozen := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	limiter := ratelimit.NewFixedWindowLimiter(counters,
		ratelimit.WithClock(func() time.Time { return frozen }))

	checker := health.NewChecker("test")
	checker.RegisterCheck("cache", func(ctx context.Context) error {
		_, err := c.Exists(ctx, "probe")
		return err
	})

	cfg := &config.ServerConfig{Address: ":0"}
	return New(cfg, sessions, userSvc, limiter,
		WithHealthChecker(checker),
		WithMetrics(observability.NewMetrics("test")),
	)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func login(t *testing.T, s *Server, username, password string) *session.TokenPair {
	t.Helper()

	w := doJSON(t, s, "POST", "/auth/login", map[string]string{
		"username": username, "password": password,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var pair session.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	return &pair
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Kind
}

func TestLoginEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	pair := login(t, s, "alice", "correct horse")
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(60), pair.ExpiresIn)
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	w := doJSON(t, s, "POST", "/auth/login", map[string]string{
		"username": "alice", "password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", errorKind(t, w))

	w = doJSON(t, s, "POST", "/auth/login", map[string]string{"username": "alice"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	pair := login(t, s, "alice", "correct horse")

	w := doJSON(t, s, "POST", "/auth/refresh", map[string]string{
		"refreshToken": pair.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rotated session.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rotated))
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The consumed token cannot be replayed.
	w = doJSON(t, s, "POST", "/auth/refresh", map[string]string{
		"refreshToken": pair.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_refresh_token", errorKind(t, w))
}

func TestLogoutEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	pair := login(t, s, "alice", "correct horse")

	w := doJSON(t, s, "POST", "/auth/logout", map[string]string{
		"refreshToken": pair.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Idempotent.
	w = doJSON(t, s, "POST", "/auth/logout", map[string]string{
		"refreshToken": pair.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// The revoked session cannot be refreshed.
	w = doJSON(t, s, "POST", "/auth/refresh", map[string]string{
		"refreshToken": pair.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfileEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/api/v1/profile", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorKind(t, w))

	pair := login(t, s, "alice", "correct horse")
	w = doJSON(t, s, "GET", "/api/v1/profile", nil, map[string]string{
		"Authorization": "Bearer " + pair.AccessToken,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var profile profileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "user", profile.Role)
}

func TestProfileWithAPIKey(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/api/v1/profile", nil, map[string]string{
		"x-api-key": "ak-alice",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, "GET", "/api/v1/profile", nil, map[string]string{
		"x-api-key": "ak-unknown",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoleCheck(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	userPair := login(t, s, "alice", "correct horse")
	w := doJSON(t, s, "DELETE", "/api/v1/users/u-1", nil, map[string]string{
		"Authorization": "Bearer " + userPair.AccessToken,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorKind(t, w))

	adminPair := login(t, s, "admin", "hunter2")
	w = doJSON(t, s, "DELETE", "/api/v1/users/u-1", nil, map[string]string{
		"Authorization": "Bearer " + adminPair.AccessToken,
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, "DELETE", "/api/v1/users/u-999", nil, map[string]string{
		"Authorization": "Bearer " + adminPair.AccessToken,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCarsIsPublic(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/api/v1/cars", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Cars []carListing `json:"cars"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Cars)

	// The long tier headers are exposed.
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitRejection(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	pair := login(t, s, "alice", "correct horse")
	header := map[string]string{"Authorization": "Bearer " + pair.AccessToken}

	for i := 0; i < 3; i++ {
		w := doJSON(t, s, "GET", "/api/v1/profile", nil, header)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := doJSON(t, s, "GET", "/api/v1/profile", nil, header)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too_many_requests", errorKind(t, w))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRetryAfterRoundsUpToWindowEnd(t *testing.T) {
	t.Parallel()

	tokenCfg := token.DefaultConfig()
	tokenCfg.AccessSecret = []byte("access-secret-for-tests")
	tokenCfg.RefreshSecret = []byte("refresh-secret-for-tests")
	tokens, err := token.NewManager(tokenCfg)
	require.NoError(t, err)

	userSvc, err := users.NewSeededService([]users.SeedAccount{
		{ID: "u-1", Username: "alice", Password: "correct horse", Role: "user"},
	})
	require.NoError(t, err)

	c := cache.NewMemoryCache(observability.NopLogger())
	t.Cleanup(func() { _ = c.Close() })
	sessions := session.NewManager(tokens, userSvc, c)

	counters := store.NewMemoryStore()
	t.Cleanup(func() { _ = counters.Close() })

	// Freeze the clock 1.5s into a 10s window: 8.5s remain until the
	// reset, so the client must be told to retry after 9 seconds. A
	// floor would say 8 and land the retry inside the same window.
	frozen := time.Date(2026, 1, 2, 15, 4, 1, 500_000_000, time.UTC)
	limiter := ratelimit.NewFixedWindowLimiter(counters,
		ratelimit.WithClock(func() time.Time { return frozen }),
		ratelimit.WithTiers([]ratelimit.Tier{
			{Name: ratelimit.TierMedium, Window: 10 * time.Second, Max: 1},
		}),
	)

	s := New(&config.ServerConfig{Address: ":0"}, sessions, userSvc, limiter)

	body := map[string]string{"username": "alice", "password": "correct horse"}
	w := doJSON(t, s, "POST", "/auth/login", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, "POST", "/auth/login", body, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "9", w.Header().Get("Retry-After"))
	assert.Equal(t, strconv.FormatInt(frozen.Truncate(10*time.Second).Add(10*time.Second).Unix(), 10),
		w.Header().Get("X-RateLimit-Reset"))
}

func TestRequestIDEcho(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	id := uuid.NewString()
	w := doJSON(t, s, "GET", "/api/v1/cars", nil, map[string]string{
		"x-request-id":     id,
		"x-correlation-id": "corr-1",
	})
	assert.Equal(t, id, w.Header().Get("x-request-id"))
	assert.Equal(t, "corr-1", w.Header().Get("x-correlation-id"))

	// A non-UUID request id is replaced.
	w = doJSON(t, s, "GET", "/api/v1/cars", nil, map[string]string{
		"x-request-id": "not-a-uuid",
	})
	got := w.Header().Get("x-request-id")
	assert.NotEqual(t, "not-a-uuid", got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, "GET", "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, "GET", "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_requests_total")
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	t.Parallel()

	tokenCfg := token.DefaultConfig()
	tokenCfg.AccessSecret = []byte("access-secret-for-tests")
	tokenCfg.RefreshSecret = []byte("refresh-secret-for-tests")

	past := time.Now().Add(-time.Hour)
	issuer, err := token.NewManager(tokenCfg, token.WithClock(func() time.Time { return past }))
	require.NoError(t, err)

	stale, err := issuer.IssueAccess(token.Payload{UserID: "u-1", SessionID: "s-1", Role: "user"})
	require.NoError(t, err)

	s := newTestServer(t)
	w := doJSON(t, s, "GET", "/api/v1/profile", nil, map[string]string{
		"Authorization": "Bearer " + stale,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
