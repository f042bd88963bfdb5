package auth

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Credential header names. The bearer token always wins when both are
// present.
const (
	authorizationHeader = "Authorization"
	apiKeyHeader        = "x-api-key"

	bearerPrefix = "Bearer "
)

// CredentialType is the kind of extracted credential.
type CredentialType string

// Credential types.
const (
	CredentialTypeBearer CredentialType = "bearer"
	CredentialTypeAPIKey CredentialType = "apikey"
)

// Credentials is a credential extracted from a request.
type Credentials struct {
	// Type is the credential type.
	Type CredentialType

	// Value is the raw token or key.
	Value string
}

// ExtractHTTP extracts credentials from an HTTP request. Returns
// ErrNoCredentials when neither header carries a usable credential; a
// malformed Authorization header is treated as absent.
func ExtractHTTP(r *http.Request) (*Credentials, error) {
	return extract(r.Header.Get(authorizationHeader), r.Header.Get(apiKeyHeader))
}

// ExtractGRPC extracts credentials from incoming gRPC metadata. The
// same precedence as HTTP applies.
func ExtractGRPC(ctx context.Context) (*Credentials, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, ErrNoCredentials
	}

	return extract(firstMetadataValue(md, "authorization"), firstMetadataValue(md, apiKeyHeader))
}

func extract(authorization, apiKey string) (*Credentials, error) {
	if token := bearerToken(authorization); token != "" {
		return &Credentials{Type: CredentialTypeBearer, Value: token}, nil
	}

	if apiKey != "" {
		return &Credentials{Type: CredentialTypeAPIKey, Value: apiKey}, nil
	}

	return nil, ErrNoCredentials
}

// bearerToken returns the token from a "Bearer <token>" value, or an
// empty string when the value does not carry one.
func bearerToken(authorization string) string {
	if len(authorization) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authorization[len(bearerPrefix):])
}

func firstMetadataValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
