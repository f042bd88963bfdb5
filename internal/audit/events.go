// Package audit emits structured audit events for security-relevant
// actions: session lifecycle, authorization denials, rate limit
// rejections, and configuration reloads.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

// Event types.
const (
	EventTypeAuthentication EventType = "authentication"
	EventTypeAuthorization  EventType = "authorization"
	EventTypeSecurity       EventType = "security"
	EventTypeConfiguration  EventType = "configuration"
)

// Action represents the action being audited.
type Action string

// Actions.
const (
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
	ActionTokenRefresh Action = "token_refresh"

	ActionAccess Action = "access"
	ActionDeny   Action = "deny"

	ActionRateLimitExceeded Action = "rate_limit_exceeded"

	ActionConfigReload Action = "config_reload"
)

// Outcome represents the outcome of an audited action.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is one audit record.
type Event struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Action is the action being audited.
	Action Action `json:"action"`

	// Outcome is the outcome of the action.
	Outcome Outcome `json:"outcome"`

	// Subject is the entity performing the action.
	Subject *Subject `json:"subject,omitempty"`

	// Resource is the operation being accessed.
	Resource *Resource `json:"resource,omitempty"`

	// RequestID correlates the event with the request that caused it.
	RequestID string `json:"requestId,omitempty"`

	// Metadata contains additional event-specific detail.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Subject is the entity performing an audited action.
type Subject struct {
	// ID is the user ID, or an address key for anonymous callers.
	ID string `json:"id"`

	// Role is the subject's role.
	Role string `json:"role,omitempty"`

	// IPAddress is the client address.
	IPAddress string `json:"ipAddress,omitempty"`

	// AuthMethod is the authentication method used.
	AuthMethod string `json:"authMethod,omitempty"`
}

// Resource is the operation being accessed.
type Resource struct {
	// Transport is "http" or "grpc".
	Transport string `json:"transport,omitempty"`

	// Method is the HTTP method or gRPC method name.
	Method string `json:"method,omitempty"`

	// Path is the route path.
	Path string `json:"path,omitempty"`
}

// NewEvent creates an event with a fresh ID and the current timestamp.
func NewEvent(eventType EventType, action Action, outcome Outcome) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Action:    action,
		Outcome:   outcome,
	}
}
