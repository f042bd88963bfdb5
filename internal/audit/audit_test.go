package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorland/carmarket/internal/observability"
)

func TestLogEventWritesJSONLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithWriter(&buf))
	t.Cleanup(func() { _ = lg.Close() })

	lg.LogEvent(context.Background(), NewEvent(EventTypeAuthentication, ActionLogin, OutcomeSuccess))
	lg.LogEvent(context.Background(), NewEvent(EventTypeSecurity, ActionRateLimitExceeded, OutcomeDenied))

	scanner := bufio.NewScanner(&buf)

	require.True(t, scanner.Scan())
	var first Event
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &first))
	assert.Equal(t, EventTypeAuthentication, first.Type)
	assert.Equal(t, ActionLogin, first.Action)
	assert.Equal(t, OutcomeSuccess, first.Outcome)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())

	require.True(t, scanner.Scan())
	var second Event
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &second))
	assert.Equal(t, ActionRateLimitExceeded, second.Action)
	assert.NotEqual(t, first.ID, second.ID)

	assert.False(t, scanner.Scan())
}

func TestLogEventTakesRequestIDFromContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithWriter(&buf))
	t.Cleanup(func() { _ = lg.Close() })

	ctx := observability.ContextWithRequestID(context.Background(), "req-123")
	lg.LogEvent(ctx, NewEvent(EventTypeAuthentication, ActionLogout, OutcomeSuccess))

	var event Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "req-123", event.RequestID)
}

func TestLogEventWithSubjectAndResource(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithWriter(&buf))
	t.Cleanup(func() { _ = lg.Close() })

	event := NewEvent(EventTypeAuthorization, ActionDeny, OutcomeDenied)
	event.Subject = &Subject{ID: "u-1", Role: "user", AuthMethod: "token"}
	event.Resource = &Resource{Transport: "http", Method: "DELETE", Path: "/api/v1/users/:id"}
	lg.LogEvent(context.Background(), event)

	var got Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.NotNil(t, got.Subject)
	assert.Equal(t, "u-1", got.Subject.ID)
	require.NotNil(t, got.Resource)
	assert.Equal(t, "DELETE", got.Resource.Method)
}

func TestNopLoggerDiscards(t *testing.T) {
	t.Parallel()

	lg := NopLogger()
	lg.LogEvent(context.Background(), NewEvent(EventTypeSecurity, ActionRateLimitExceeded, OutcomeDenied))
	assert.NoError(t, lg.Close())
}

func TestLogEventNilEvent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithWriter(&buf))
	t.Cleanup(func() { _ = lg.Close() })

	lg.LogEvent(context.Background(), nil)
	assert.Zero(t, buf.Len())
}
