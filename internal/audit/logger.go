package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/motorland/carmarket/internal/observability"
)

// Logger records audit events.
type Logger interface {
	// LogEvent records an audit event.
	LogEvent(ctx context.Context, event *Event)

	// Close flushes and closes the logger.
	Close() error
}

// logger writes audit events as JSON lines.
type logger struct {
	mu      sync.Mutex
	writer  io.Writer
	logger  observability.Logger
	metrics *observability.Metrics
	closer  io.Closer
}

// Option is a functional option for the audit logger.
type Option func(*logger)

// WithLogger sets the fallback logger for serialization failures.
func WithLogger(l observability.Logger) Option {
	return func(lg *logger) {
		lg.logger = l
	}
}

// WithMetrics attaches metrics recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(lg *logger) {
		lg.metrics = m
	}
}

// WithWriter sets the destination writer. Defaults to stdout. When the
// writer is also an io.Closer it is closed by Close.
func WithWriter(w io.Writer) Option {
	return func(lg *logger) {
		lg.writer = w
		if c, ok := w.(io.Closer); ok {
			lg.closer = c
		}
	}
}

// NewLogger creates an audit logger.
func NewLogger(opts ...Option) Logger {
	lg := &logger{
		writer: os.Stdout,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(lg)
	}

	return lg
}

// LogEvent implements Logger. The request ID is taken from the context
// when the event does not carry one.
func (lg *logger) LogEvent(ctx context.Context, event *Event) {
	if event == nil {
		return
	}

	if event.RequestID == "" {
		event.RequestID = observability.RequestIDFromContext(ctx)
	}

	line, err := json.Marshal(event)
	if err != nil {
		lg.logger.Error("failed to marshal audit event",
			observability.String("action", string(event.Action)),
			observability.Error(err))
		return
	}

	lg.mu.Lock()
	_, werr := lg.writer.Write(append(line, '\n'))
	lg.mu.Unlock()

	if werr != nil {
		lg.logger.Error("failed to write audit event",
			observability.String("action", string(event.Action)),
			observability.Error(werr))
		return
	}

	if lg.metrics != nil {
		lg.metrics.RecordAuditEvent(string(event.Type), string(event.Action), string(event.Outcome))
	}
}

// Close implements Logger.
func (lg *logger) Close() error {
	if lg.closer != nil {
		return lg.closer.Close()
	}
	return nil
}

// NopLogger returns an audit logger that discards all events.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) LogEvent(context.Context, *Event) {}
func (nopLogger) Close() error                     { return nil }
