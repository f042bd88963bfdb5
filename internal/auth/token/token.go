// Package token issues and verifies the signed access and refresh
// tokens. Access and refresh tokens are signed with separate secrets so
// one can never be presented in place of the other.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for token operations.
var (
	// ErrInvalidToken indicates a token that failed verification for any
	// reason: bad signature, wrong issuer, expired, or malformed.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingClaim indicates a structurally valid token missing a
	// required claim.
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidConfig indicates invalid token configuration.
	ErrInvalidConfig = errors.New("invalid token configuration")
)

// Claims are the claims carried by issued tokens.
type Claims struct {
	SessionID string `json:"sessionId"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Payload is the identity material baked into a token pair.
type Payload struct {
	UserID    string
	SessionID string
	FirstName string
	LastName  string
	Role      string
}

// Config holds token signing configuration.
type Config struct {
	// Issuer is the iss claim value.
	Issuer string

	// AccessSecret signs access tokens.
	AccessSecret []byte

	// RefreshSecret signs refresh tokens. Must differ from AccessSecret.
	RefreshSecret []byte

	// AccessTTL is the access token lifetime.
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime.
	RefreshTTL time.Duration
}

// DefaultConfig returns a Config with default lifetimes. Secrets must be
// provided by the caller.
func DefaultConfig() *Config {
	return &Config{
		Issuer:     "carmarket",
		AccessTTL:  60 * time.Second,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// Manager issues and verifies tokens.
type Manager struct {
	cfg *Config
	now func() time.Time
}

// Option is a functional option for configuring the manager.
type Option func(*Manager)

// WithClock sets the time source. Used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a token manager.
func NewManager(cfg *Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("%w: access and refresh secrets are required", ErrInvalidConfig)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrInvalidConfig)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", ErrInvalidConfig)
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("%w: refresh lifetime must exceed access lifetime", ErrInvalidConfig)
	}

	m := &Manager{
		cfg: cfg,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.cfg.AccessTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration {
	return m.cfg.RefreshTTL
}

// IssueAccess issues a short-lived access token for the payload.
func (m *Manager) IssueAccess(p Payload) (string, error) {
	return m.issue(p, m.cfg.AccessSecret, m.cfg.AccessTTL)
}

// IssueRefresh issues a refresh token for the payload.
func (m *Manager) IssueRefresh(p Payload) (string, error) {
	return m.issue(p, m.cfg.RefreshSecret, m.cfg.RefreshTTL)
}

func (m *Manager) issue(p Payload, secret []byte, ttl time.Duration) (string, error) {
	now := m.now()

	claims := Claims{
		SessionID: p.SessionID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Role:      p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// VerifyAccess verifies an access token and returns its claims.
func (m *Manager) VerifyAccess(tokenString string) (*Claims, error) {
	return m.verify(tokenString, m.cfg.AccessSecret)
}

// VerifyRefresh verifies a refresh token and returns its claims.
func (m *Manager) VerifyRefresh(tokenString string) (*Claims, error) {
	return m.verify(tokenString, m.cfg.RefreshSecret)
}

func (m *Manager) verify(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: sessionId", ErrMissingClaim)
	}

	return claims, nil
}
