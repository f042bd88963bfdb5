package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/motorland/carmarket/internal/audit"
	"github.com/motorland/carmarket/internal/auth"
	"github.com/motorland/carmarket/internal/observability"
	"github.com/motorland/carmarket/internal/ratelimit"
)

// Correlation header names. Both are echoed on every response.
const (
	requestIDHeader     = "x-request-id"
	correlationIDHeader = "x-correlation-id"
	forwardedForHeader  = "X-Forwarded-For"
)

// requestContext initializes the per-request context: a validated
// request ID, a correlation ID, and both echoed as response headers.
// Each request gets its own derived context, so concurrent requests
// never share state.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		correlationID := c.GetHeader(correlationIDHeader)
		if correlationID == "" {
			correlationID = requestID
		}

		ctx := observability.ContextWithRequestID(c.Request.Context(), requestID)
		ctx = observability.ContextWithCorrelationID(ctx, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(requestIDHeader, requestID)
		c.Header(correlationIDHeader, correlationID)

		c.Next()
	}
}

// observe records request metrics and an access log line.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if s.metrics != nil {
			s.metrics.IncActiveRequests()
			defer s.metrics.DecActiveRequests()
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)

		if s.metrics != nil {
			s.metrics.RecordRequest("http", route, status, duration)
		}

		s.logger.WithContext(c.Request.Context()).Info("http request",
			observability.String("method", c.Request.Method),
			observability.String("route", route),
			observability.Int("status", status),
			observability.Duration("duration", duration),
		)
	}
}

// authenticate resolves credentials into a principal. On protected
// routes a missing or bad credential aborts with Unauthorized; on
// public routes authentication is best effort so rate limiting can
// still key by user.
func (s *Server) authenticate(public bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		creds, err := auth.ExtractHTTP(c.Request)
		if err != nil {
			if public {
				c.Next()
				return
			}
			abortWithError(c, auth.NewUnauthorized(err))
			return
		}

		principal, err := s.sessions.Authenticate(c.Request.Context(), creds)
		if err != nil {
			if public {
				c.Next()
				return
			}
			abortWithError(c, err)
			return
		}

		ctx := auth.ContextWithPrincipal(c.Request.Context(), principal)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// requireRoles enforces the route's role list with exact matching.
func (s *Server) requireRoles(roles []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := auth.RequirePrincipal(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}

		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}

		s.audit.LogEvent(c.Request.Context(), s.denyEvent(c, principal))
		if s.metrics != nil {
			s.metrics.RecordAuthFailure("role")
		}
		abortWithError(c, auth.NewForbidden(nil))
	}
}

// rateLimit applies the route's tiers to the resolved actor.
func (s *Server) rateLimit(tiers []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorKey := s.actorKey(c)

		result, err := s.limiter.Allow(c.Request.Context(), actorKey, tiers...)
		if err != nil {
			// Fail open: the limiter must never take down the request
			// path.
			s.logger.Warn("rate limit check failed, allowing request",
				observability.String("actor", actorKey),
				observability.Error(err),
			)
			c.Next()
			return
		}

		if result.Tier != "" {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
		}

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(result.RetryAfterSeconds()))

			event := audit.NewEvent(audit.EventTypeSecurity, audit.ActionRateLimitExceeded, audit.OutcomeDenied)
			event.Subject = &audit.Subject{ID: actorKey, IPAddress: c.ClientIP()}
			event.Resource = &audit.Resource{Transport: "http", Method: c.Request.Method, Path: c.FullPath()}
			event.Metadata = map[string]interface{}{"tier": result.Tier}
			s.audit.LogEvent(c.Request.Context(), event)

			abortWithError(c, auth.NewTooManyRequests())
			return
		}

		c.Next()
	}
}

// actorKey derives the rate limit key for the request.
func (s *Server) actorKey(c *gin.Context) string {
	var userID string
	if principal := auth.PrincipalFromContext(c.Request.Context()); principal != nil {
		userID = principal.ID
	}
	return ratelimit.ActorKey(userID, c.GetHeader(forwardedForHeader), c.Request.RemoteAddr)
}

func (s *Server) denyEvent(c *gin.Context, principal *auth.Principal) *audit.Event {
	event := audit.NewEvent(audit.EventTypeAuthorization, audit.ActionDeny, audit.OutcomeDenied)
	event.Subject = &audit.Subject{
		ID:         principal.ID,
		Role:       principal.Role,
		IPAddress:  c.ClientIP(),
		AuthMethod: string(principal.AuthType),
	}
	event.Resource = &audit.Resource{Transport: "http", Method: c.Request.Method, Path: c.FullPath()}
	return event
}
