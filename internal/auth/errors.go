package auth

import (
	"errors"
	"fmt"
)

// Kind classifies authentication and authorization failures. Transports
// map kinds to status codes without inspecting messages.
type Kind string

// Failure kinds.
const (
	// KindInvalidCredentials indicates a failed login attempt.
	KindInvalidCredentials Kind = "invalid_credentials"

	// KindInvalidRefreshToken indicates a refresh token that is expired,
	// malformed, revoked, or already used.
	KindInvalidRefreshToken Kind = "invalid_refresh_token"

	// KindUnauthorized indicates a missing or unverifiable credential on
	// a protected operation.
	KindUnauthorized Kind = "unauthorized"

	// KindForbidden indicates an authenticated caller lacking the
	// required role.
	KindForbidden Kind = "forbidden"

	// KindTooManyRequests indicates a rate limit rejection.
	KindTooManyRequests Kind = "too_many_requests"
)

// Sentinel errors for credential extraction.
var (
	// ErrNoCredentials indicates that no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")
)

// Error is a classified authentication failure.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Message is the caller-facing description. It is deliberately
	// uniform within a kind so responses do not leak which check failed.
	Message string

	// Err is the underlying cause, for logs only.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidCredentials returns an invalid credentials error.
func NewInvalidCredentials(cause error) *Error {
	return &Error{Kind: KindInvalidCredentials, Message: "invalid credentials", Err: cause}
}

// NewInvalidRefreshToken returns an invalid refresh token error. All
// refresh failures collapse into this one error.
func NewInvalidRefreshToken(cause error) *Error {
	return &Error{Kind: KindInvalidRefreshToken, Message: "invalid refresh token", Err: cause}
}

// NewUnauthorized returns an unauthorized error.
func NewUnauthorized(cause error) *Error {
	return &Error{Kind: KindUnauthorized, Message: "unauthorized", Err: cause}
}

// NewForbidden returns a forbidden error.
func NewForbidden(cause error) *Error {
	return &Error{Kind: KindForbidden, Message: "forbidden", Err: cause}
}

// NewTooManyRequests returns a rate limit error.
func NewTooManyRequests() *Error {
	return &Error{Kind: KindTooManyRequests, Message: "too many requests"}
}

// KindOf returns the failure kind of err, or an empty kind when err is
// not a classified authentication failure.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}
