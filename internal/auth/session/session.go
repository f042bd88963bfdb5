// Package session implements the session lifecycle: login, single-use
// refresh rotation, logout, and per-request authentication.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/motorland/carmarket/internal/auth"
	"github.com/motorland/carmarket/internal/auth/token"
	"github.com/motorland/carmarket/internal/cache"
	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/users"
)

// refreshKeyPrefix namespaces refresh session records in the cache.
const refreshKeyPrefix = "refresh_tokens"

// refreshKey builds the cache key for one user session.
func refreshKey(userID, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", refreshKeyPrefix, userID, sessionID)
}

// record is the stored refresh session.
type record struct {
	UserID       string    `json:"userId"`
	SessionID    string    `json:"sessionId"`
	RefreshToken string    `json:"refreshToken"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// TokenPair is an issued access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
}

// Manager drives the session lifecycle.
type Manager struct {
	tokens  *token.Manager
	users   users.Service
	cache   cache.Cache
	logger  observability.Logger
	metrics *observability.Metrics

	newSessionID func() string
	now          func() time.Time
}

// Option is a functional option for configuring the manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics attaches metrics recording.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithSessionIDGenerator sets the session ID source. Used by tests.
func WithSessionIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.newSessionID = gen
	}
}

// WithClock sets the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager.
func NewManager(tokens *token.Manager, userSvc users.Service, c cache.Cache, opts ...Option) *Manager {
	m := &Manager{
		tokens:       tokens,
		users:        userSvc,
		cache:        c,
		logger:       observability.NopLogger(),
		newSessionID: uuid.NewString,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Login authenticates the username and password and starts a new
// session. An unknown user and a wrong password produce the same error.
func (m *Manager) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := m.users.FindByUsername(ctx, username)
	if err != nil {
		m.recordSessionEvent("login", "failure")
		return nil, auth.NewInvalidCredentials(err)
	}

	if !user.CheckPassword(password) {
		m.recordSessionEvent("login", "failure")
		return nil, auth.NewInvalidCredentials(nil)
	}

	pair, sessionID, err := m.startSession(ctx, user)
	if err != nil {
		m.recordSessionEvent("login", "error")
		return nil, err
	}

	m.recordSessionEvent("login", "success")
	m.logger.Info("session started",
		observability.String("userId", user.ID),
		observability.String("sessionId", sessionID),
	)

	return pair, nil
}

// Refresh rotates a session. The presented refresh token is single use:
// the new session record is written before the old one is deleted, so a
// crash between the two steps can never leave the user without a valid
// session. Every failure collapses into the same error so callers learn
// nothing about which check rejected the token.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := m.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		m.recordSessionEvent("refresh", "failure")
		return nil, auth.NewInvalidRefreshToken(err)
	}

	oldKey := refreshKey(claims.Subject, claims.SessionID)

	stored, err := m.cache.Get(ctx, oldKey)
	if err != nil {
		m.recordSessionEvent("refresh", "failure")
		return nil, auth.NewInvalidRefreshToken(err)
	}

	var rec record
	if err := json.Unmarshal(stored, &rec); err != nil {
		m.recordSessionEvent("refresh", "failure")
		return nil, auth.NewInvalidRefreshToken(err)
	}

	if rec.RefreshToken != refreshToken {
		m.recordSessionEvent("refresh", "failure")
		return nil, auth.NewInvalidRefreshToken(nil)
	}

	user, err := m.users.FindByID(ctx, claims.Subject)
	if err != nil {
		m.recordSessionEvent("refresh", "failure")
		return nil, auth.NewInvalidRefreshToken(err)
	}

	pair, newSessionID, err := m.startSession(ctx, user)
	if err != nil {
		m.recordSessionEvent("refresh", "failure")
		return nil, auth.NewInvalidRefreshToken(err)
	}

	if err := m.cache.Delete(ctx, oldKey); err != nil {
		// The new session is already live; the old record will age out
		// with its TTL.
		m.logger.Warn("failed to delete rotated session",
			observability.String("userId", user.ID),
			observability.String("sessionId", claims.SessionID),
			observability.Error(err),
		)
	}

	m.recordSessionEvent("refresh", "success")
	m.logger.Info("session rotated",
		observability.String("userId", user.ID),
		observability.String("oldSessionId", claims.SessionID),
		observability.String("sessionId", newSessionID),
	)

	return pair, nil
}

// Logout revokes the session named by the refresh token. It is
// idempotent: an invalid or already revoked token is not an error. A
// cache backend failure is returned, since the session stays live.
func (m *Manager) Logout(ctx context.Context, refreshToken string) error {
	claims, err := m.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		m.recordSessionEvent("logout", "noop")
		return nil
	}

	// A backend failure is surfaced: the token is still redeemable, so
	// reporting success here would be a lie. Deleting an absent key is
	// not an error on any backend, which keeps logout idempotent.
	key := refreshKey(claims.Subject, claims.SessionID)
	if err := m.cache.Delete(ctx, key); err != nil {
		m.recordSessionEvent("logout", "error")
		m.logger.Error("failed to delete session on logout",
			observability.String("userId", claims.Subject),
			observability.String("sessionId", claims.SessionID),
			observability.Error(err),
		)
		return fmt.Errorf("revoke session: %w", err)
	}

	m.recordSessionEvent("logout", "success")
	m.logger.Info("session revoked",
		observability.String("userId", claims.Subject),
		observability.String("sessionId", claims.SessionID),
	)

	return nil
}

// Authenticate resolves extracted credentials into a principal. Access
// tokens are verified statelessly; API keys are looked up in the user
// directory.
func (m *Manager) Authenticate(ctx context.Context, creds *auth.Credentials) (*auth.Principal, error) {
	if creds == nil {
		return nil, auth.NewUnauthorized(auth.ErrNoCredentials)
	}

	switch creds.Type {
	case auth.CredentialTypeBearer:
		claims, err := m.tokens.VerifyAccess(creds.Value)
		if err != nil {
			m.recordAuthFailure("bearer")
			return nil, auth.NewUnauthorized(err)
		}
		return &auth.Principal{
			ID:        claims.Subject,
			Role:      claims.Role,
			SessionID: claims.SessionID,
			AuthType:  auth.AuthTypeToken,
		}, nil

	case auth.CredentialTypeAPIKey:
		user, err := m.users.FindByAPIKey(ctx, creds.Value)
		if err != nil {
			m.recordAuthFailure("apikey")
			return nil, auth.NewUnauthorized(err)
		}
		return &auth.Principal{
			ID:       user.ID,
			Role:     user.Role,
			AuthType: auth.AuthTypeAPIKey,
		}, nil

	default:
		m.recordAuthFailure("unsupported")
		return nil, auth.NewUnauthorized(fmt.Errorf("unsupported credential type %q", creds.Type))
	}
}

// startSession issues a token pair and persists the refresh record.
func (m *Manager) startSession(ctx context.Context, user *users.User) (*TokenPair, string, error) {
	sessionID := m.newSessionID()

	payload := token.Payload{
		UserID:    user.ID,
		SessionID: sessionID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}

	access, err := m.tokens.IssueAccess(payload)
	if err != nil {
		return nil, "", fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := m.tokens.IssueRefresh(payload)
	if err != nil {
		return nil, "", fmt.Errorf("issue refresh token: %w", err)
	}

	rec, err := json.Marshal(record{
		UserID:       user.ID,
		SessionID:    sessionID,
		RefreshToken: refresh,
		IssuedAt:     m.now(),
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal session record: %w", err)
	}

	key := refreshKey(user.ID, sessionID)
	if err := m.cache.Set(ctx, key, rec, m.tokens.RefreshTTL()); err != nil {
		return nil, "", fmt.Errorf("persist session record: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.tokens.AccessTTL().Seconds()),
	}, sessionID, nil
}

func (m *Manager) recordSessionEvent(action, outcome string) {
	if m.metrics != nil {
		m.metrics.RecordSessionEvent(action, outcome)
	}
}

func (m *Manager) recordAuthFailure(kind string) {
	if m.metrics != nil {
		m.metrics.RecordAuthFailure(kind)
	}
}
