package httpserver

import (
	"github.com/gin-gonic/gin"

	"github.com/motorland/carmarket/internal/ratelimit"
)

// Route declares one HTTP operation and its pipeline requirements. The
// table is built at startup; the middleware chain consults it instead of
// per-handler annotations.
type Route struct {
	// Method is the HTTP method.
	Method string

	// Path is the gin route pattern.
	Path string

	// Public marks the route as reachable without credentials. Public
	// routes still resolve a principal when one is presented, so rate
	// limiting can key by user.
	Public bool

	// Roles lists the roles allowed to call the route. Matching is
	// exact: "admin" does not satisfy a "user" requirement unless
	// listed. Empty means any authenticated caller.
	Roles []string

	// Tiers names the rate limit tiers applied to the route. Empty
	// means every configured tier.
	Tiers []string

	// Handler is the terminal handler.
	Handler gin.HandlerFunc
}

// routes builds the route table.
func (s *Server) routes() []Route {
	return []Route{
		{
			Method:  "POST",
			Path:    "/auth/login",
			Public:  true,
			Tiers:   []string{ratelimit.TierShort, ratelimit.TierMedium},
			Handler: s.handleLogin,
		},
		{
			Method:  "POST",
			Path:    "/auth/refresh",
			Public:  true,
			Tiers:   []string{ratelimit.TierShort, ratelimit.TierMedium},
			Handler: s.handleRefresh,
		},
		{
			Method:  "POST",
			Path:    "/auth/logout",
			Public:  true,
			Tiers:   []string{ratelimit.TierShort},
			Handler: s.handleLogout,
		},
		{
			Method:  "GET",
			Path:    "/api/v1/cars",
			Public:  true,
			Tiers:   []string{ratelimit.TierLong},
			Handler: s.handleListCars,
		},
		{
			Method:  "GET",
			Path:    "/api/v1/profile",
			Tiers:   []string{ratelimit.TierShort, ratelimit.TierMedium},
			Handler: s.handleProfile,
		},
		{
			Method:  "DELETE",
			Path:    "/api/v1/users/:id",
			Roles:   []string{"admin"},
			Tiers:   []string{ratelimit.TierShort},
			Handler: s.handleDeleteUser,
		},
	}
}

// register installs the route table on the engine with the per-route
// pipeline: authentication, role check, then rate limiting.
func (s *Server) register(routes []Route) {
	for _, route := range routes {
		chain := []gin.HandlerFunc{
			s.authenticate(route.Public),
		}
		if len(route.Roles) > 0 {
			chain = append(chain, s.requireRoles(route.Roles))
		}
		chain = append(chain, s.rateLimit(route.Tiers), route.Handler)

		s.engine.Handle(route.Method, route.Path, chain...)
	}
}
