// Package grpcserver provides the gRPC transport. The services are
// described by hand written descriptors and exchange JSON encoded
// messages, so REST and gRPC callers see identical payload shapes.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/motorland/carmarket/internal/audit"
	"github.com/motorland/carmarket/internal/auth/session"
	"github.com/motorland/carmarket/internal/config"
	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/ratelimit"
	"github.com/motorland/carmarket/internal/users"
)

// Server is the gRPC transport.
type Server struct {
	cfg *config.GRPCConfig

	sessions *session.Manager
	users    users.Service
	limiter  ratelimit.Limiter

	logger  observability.Logger
	metrics *observability.Metrics
	audit   audit.Logger

	grpcServer   *grpc.Server
	healthServer *health.Server

	mu       sync.Mutex
	listener net.Listener
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics attaches metrics.
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

// New creates the gRPC transport.
func New(
	cfg *config.GRPCConfig,
	sessions *session.Manager,
	userSvc users.Service,
	limiter ratelimit.Limiter,
	opts ...Option,
) *Server {
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

	interceptors := []grpc.UnaryServerInterceptor{}
	if guard := newListenerGuard(cfg.ListenerRPS, cfg.ListenerBurst); guard != nil {
		interceptors = append(interceptors, guard.intercept)
	}
	interceptors = append(interceptors,
		s.requestContext(),
		s.observe(),
		mapErrors(),
		s.authenticate(),
		s.rateLimit(),
	)

	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(interceptors...),
	}
	if cfg.MaxRecvMsgSize > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	}

	s.grpcServer = grpc.NewServer(serverOpts...)

	svc := NewService(sessions, userSvc, s.audit)
	s.grpcServer.RegisterService(&AuthServiceDesc, svc)
	s.grpcServer.RegisterService(&UserServiceDesc, svc)

	s.healthServer = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.healthServer)

	return s
}

// Start runs the server until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return fmt.Errorf("grpc server already running")
	}

	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("grpc listen on %s: %w", s.cfg.Address, err)
	}
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("starting grpc server",
		observability.String("address", s.cfg.Address))

	s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return s.grpcServer.Serve(lis)
}

// Stop drains in-flight calls and shuts the server down. When the
// context expires before draining completes the server is stopped
// forcefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.listener = nil
	s.mu.Unlock()

	s.logger.Info("stopping grpc server")
	s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.grpcServer.Stop()
		return ctx.Err()
	}
}
