// Package auth provides credential extraction, the authenticated
// principal, and the failure taxonomy shared by both transports.
package auth

import "context"

// AuthType is the authentication method used by the caller.
type AuthType string

// Authentication types.
const (
	AuthTypeToken  AuthType = "token"
	AuthTypeAPIKey AuthType = "apikey"
)

// Principal is an authenticated caller.
type Principal struct {
	// ID is the user ID.
	ID string `json:"id"`

	// Role is the user's role.
	Role string `json:"role"`

	// SessionID identifies the session the access token belongs to.
	// Empty for API key callers.
	SessionID string `json:"sessionId,omitempty"`

	// AuthType is how the caller authenticated.
	AuthType AuthType `json:"authType"`
}

type principalKey struct{}

// ContextWithPrincipal stores the principal in the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored in the context, or
// nil when the request is anonymous.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// RequirePrincipal returns the principal or an unauthorized error when
// the request is anonymous.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p := PrincipalFromContext(ctx)
	if p == nil {
		return nil, NewUnauthorized(nil)
	}
	return p, nil
}
