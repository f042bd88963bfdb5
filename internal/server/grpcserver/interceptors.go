package grpcserver

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/motorland/carmarket/internal/audit"
	"github.com/motorland/carmarket/internal/auth"
	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/ratelimit"
)

// Correlation metadata keys. Both are echoed as response headers.
const (
	requestIDKey     = "x-request-id"
	correlationIDKey = "x-correlation-id"
	forwardedForKey  = "x-forwarded-for"
)

// methodPolicy is one row of the per-method policy table, mirroring the
// REST route table: who may call the method and which limit tiers
// apply.
type methodPolicy struct {
	// Public marks methods callable without credentials. Credentials
	// are still resolved best effort so rate limiting can key by user.
	Public bool

	// Roles restricts the method to principals whose role matches one
	// entry exactly. Empty means any authenticated principal.
	Roles []string

	// Tiers names the rate limit tiers applied to the method.
	Tiers []string
}

// methodPolicies is the policy table. Methods absent from the table are
// treated as protected with no rate limit.
var methodPolicies = map[string]methodPolicy{
	methodLogin:      {Public: true, Tiers: []string{ratelimit.TierShort, ratelimit.TierMedium}},
	methodRefresh:    {Public: true, Tiers: []string{ratelimit.TierShort, ratelimit.TierMedium}},
	methodLogout:     {Public: true, Tiers: []string{ratelimit.TierShort}},
	methodGetProfile: {Tiers: []string{ratelimit.TierShort, ratelimit.TierMedium}},
	methodDeleteUser: {Roles: []string{"admin"}, Tiers: []string{ratelimit.TierShort}},
}

func policyFor(fullMethod string) methodPolicy {
	if policy, ok := methodPolicies[fullMethod]; ok {
		return policy
	}
	return methodPolicy{}
}

// requestContext initializes the per-request context: a validated
// request ID, a correlation ID, and both echoed as response headers.
func (s *Server) requestContext() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		requestID := firstValue(md, requestIDKey)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		correlationID := firstValue(md, correlationIDKey)
		if correlationID == "" {
			correlationID = requestID
		}

		ctx = observability.ContextWithRequestID(ctx, requestID)
		ctx = observability.ContextWithCorrelationID(ctx, correlationID)

		_ = grpc.SetHeader(ctx, metadata.Pairs(
			requestIDKey, requestID,
			correlationIDKey, correlationID,
		))

		return handler(ctx, req)
	}
}

// observe records request metrics and an access log line.
func (s *Server) observe() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		if s.metrics != nil {
			s.metrics.IncActiveRequests()
			defer s.metrics.DecActiveRequests()
		}

		resp, err := handler(ctx, req)
		duration := time.Since(start)
		code := status.Code(err)

		if s.metrics != nil {
			s.metrics.RecordRequest("grpc", info.FullMethod, int(code), duration)
		}

		s.logger.WithContext(ctx).Info("grpc request",
			observability.String("method", info.FullMethod),
			observability.String("code", code.String()),
			observability.Duration("duration", duration),
		)

		return resp, err
	}
}

// authenticate resolves credentials into a principal and enforces the
// method's role list. Public methods authenticate best effort; failures
// there never reject the call.
func (s *Server) authenticate() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		policy := policyFor(info.FullMethod)

		principal, err := s.resolvePrincipal(ctx)
		if err != nil {
			if !policy.Public {
				return nil, err
			}
		} else {
			ctx = auth.ContextWithPrincipal(ctx, principal)
		}

		if len(policy.Roles) > 0 {
			if err := s.checkRoles(ctx, info.FullMethod, principal, policy.Roles); err != nil {
				return nil, err
			}
		}

		return handler(ctx, req)
	}
}

func (s *Server) resolvePrincipal(ctx context.Context) (*auth.Principal, error) {
	creds, err := auth.ExtractGRPC(ctx)
	if err != nil {
		return nil, auth.NewUnauthorized(err)
	}
	return s.sessions.Authenticate(ctx, creds)
}

// checkRoles enforces exact role matching.
func (s *Server) checkRoles(ctx context.Context, fullMethod string, principal *auth.Principal, roles []string) error {
	if principal == nil {
		return auth.NewUnauthorized(nil)
	}

	for _, role := range roles {
		if principal.Role == role {
			return nil
		}
	}

	event := audit.NewEvent(audit.EventTypeAuthorization, audit.ActionDeny, audit.OutcomeDenied)
	event.Subject = &audit.Subject{
		ID:         principal.ID,
		Role:       principal.Role,
		IPAddress:  peerAddr(ctx),
		AuthMethod: string(principal.AuthType),
	}
	event.Resource = &audit.Resource{Transport: "grpc", Method: fullMethod}
	s.audit.LogEvent(ctx, event)

	if s.metrics != nil {
		s.metrics.RecordAuthFailure("role")
	}
	return auth.NewForbidden(nil)
}

// rateLimit applies the method's tiers to the resolved actor.
func (s *Server) rateLimit() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		policy := policyFor(info.FullMethod)
		if len(policy.Tiers) == 0 {
			return handler(ctx, req)
		}

		actorKey := s.actorKey(ctx)

		result, err := s.limiter.Allow(ctx, actorKey, policy.Tiers...)
		if err != nil {
			// Fail open: the limiter must never take down the request
			// path.
			s.logger.Warn("rate limit check failed, allowing request",
				observability.String("actor", actorKey),
				observability.Error(err),
			)
			return handler(ctx, req)
		}

		if !result.Allowed {
			// Mirror the REST rejection headers so both transports
			// expose the same limit details.
			_ = grpc.SetTrailer(ctx, metadata.Pairs(
				"retry-after", strconv.Itoa(result.RetryAfterSeconds()),
				"x-ratelimit-limit", strconv.Itoa(result.Limit),
				"x-ratelimit-remaining", strconv.Itoa(result.Remaining),
				"x-ratelimit-reset", strconv.FormatInt(result.ResetTime.Unix(), 10),
			))

			event := audit.NewEvent(audit.EventTypeSecurity, audit.ActionRateLimitExceeded, audit.OutcomeDenied)
			event.Subject = &audit.Subject{ID: actorKey, IPAddress: peerAddr(ctx)}
			event.Resource = &audit.Resource{Transport: "grpc", Method: info.FullMethod}
			event.Metadata = map[string]interface{}{"tier": result.Tier}
			s.audit.LogEvent(ctx, event)

			return nil, auth.NewTooManyRequests()
		}

		return handler(ctx, req)
	}
}

// actorKey derives the rate limit key for the call.
func (s *Server) actorKey(ctx context.Context) string {
	var userID string
	if principal := auth.PrincipalFromContext(ctx); principal != nil {
		userID = principal.ID
	}

	var forwardedFor string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		forwardedFor = firstValue(md, forwardedForKey)
	}

	return ratelimit.ActorKey(userID, forwardedFor, peerAddr(ctx))
}

// listenerGuard is a coarse token bucket in front of every RPC. It
// protects the listener itself and runs before the per-actor limiter.
type listenerGuard struct {
	limiter *rate.Limiter
}

func newListenerGuard(rps, burst int) *listenerGuard {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = rps
	}
	return &listenerGuard{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (g *listenerGuard) intercept(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if !g.limiter.Allow() {
		return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return handler(ctx, req)
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
