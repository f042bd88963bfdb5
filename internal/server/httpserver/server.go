// Package httpserver provides the REST transport over gin.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/motorland/carmarket/internal/audit"
	"github.com/motorland/carmarket/internal/auth/session"
	"github.com/motorland/carmarket/internal/config"
	"github.com/motorland/carmarket/internal/health"
	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/ratelimit"
	"github.com/motorland/carmarket/internal/users"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race
// conditions.
var ginModeOnce sync.Once

// Server is the HTTP transport.
type Server struct {
	cfg    *config.ServerConfig
	engine *gin.Engine

	sessions *session.Manager
	users    users.Service
	limiter  ratelimit.Limiter

	logger  observability.Logger
	metrics *observability.Metrics
	audit   audit.Logger
	checker *health.Checker

	mu         sync.Mutex
	httpServer *http.Server
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics attaches metrics and exposes them on /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(a audit.Logger) Option {
	return func(s *Server) {
		s.audit = a
	}
}

// WithHealthChecker exposes /healthz and /readyz backed by the checker.
func WithHealthChecker(c *health.Checker) Option {
	return func(s *Server) {
		s.checker = c
	}
}

// New creates the HTTP transport.
func New(
	cfg *config.ServerConfig,
	sessions *session.Manager,
	userSvc users.Service,
	limiter ratelimit.Limiter,
	opts ...Option,
) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		users:    userSvc,
		limiter:  limiter,
		logger:   observability.NopLogger(),
		audit:    audit.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.limiter == nil {
		s.limiter = ratelimit.NewNoopLimiter()
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestContext(), s.observe())
	s.register(s.routes())
	s.registerOperational()

	return s
}

// Engine returns the underlying gin engine. Used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerOperational installs the metrics and probe endpoints. These
// sit outside the route table: they carry no auth and no rate limits.
func (s *Server) registerOperational() {
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	if s.checker != nil {
		s.engine.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.checker.Health())
		})
		s.engine.GET("/readyz", func(c *gin.Context) {
			resp := s.checker.Readiness(c.Request.Context())
			status := http.StatusOK
			if resp.Status != health.StatusHealthy {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, resp)
		})
	}
}

// Start runs the server until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return fmt.Errorf("http server already running")
	}

	s.httpServer = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout.Duration(),
		WriteTimeout: s.cfg.WriteTimeout.Duration(),
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting http server",
		observability.String("address", s.cfg.Address))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("stopping http server")
	return srv.Shutdown(ctx)
}
