package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/motorland/carmarket/internal/audit"
	"github.com/motorland/carmarket/internal/auth"
	"github.com/motorland/carmarket/internal/users"
)

// loginRequest is the login payload.
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// refreshRequest carries a refresh token for rotation or revocation.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// profileResponse is the authenticated caller's own account.
type profileResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// carListing is one catalog entry. The catalog is a fixture: it exists
// to give the pipeline a public read route, not to be a real inventory.
type carListing struct {
	ID    string `json:"id"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
	Price int    `json:"price"`
}

var carCatalog = []carListing{
	{ID: "c-1", Make: "Toyota", Model: "Corolla", Year: 2019, Price: 14500},
	{ID: "c-2", Make: "Volkswagen", Model: "Golf", Year: 2021, Price: 21900},
	{ID: "c-3", Make: "Ford", Model: "Mustang", Year: 2017, Price: 28750},
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": errorBody{Kind: "bad_request", Message: "username and password are required"},
		})
		return
	}

	pair, err := s.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.audit.LogEvent(c.Request.Context(), s.authEvent(c, audit.ActionLogin, audit.OutcomeFailure, req.Username))
		abortWithError(c, err)
		return
	}

	s.audit.LogEvent(c.Request.Context(), s.authEvent(c, audit.ActionLogin, audit.OutcomeSuccess, req.Username))
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": errorBody{Kind: "bad_request", Message: "refreshToken is required"},
		})
		return
	}

	pair, err := s.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.audit.LogEvent(c.Request.Context(), s.authEvent(c, audit.ActionTokenRefresh, audit.OutcomeFailure, ""))
		abortWithError(c, err)
		return
	}

	s.audit.LogEvent(c.Request.Context(), s.authEvent(c, audit.ActionTokenRefresh, audit.OutcomeSuccess, ""))
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleLogout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": errorBody{Kind: "bad_request", Message: "refreshToken is required"},
		})
		return
	}

	if err := s.sessions.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		abortWithError(c, err)
		return
	}

	s.audit.LogEvent(c.Request.Context(), s.authEvent(c, audit.ActionLogout, audit.OutcomeSuccess, ""))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListCars(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cars": carCatalog})
}

func (s *Server) handleProfile(c *gin.Context) {
	principal, err := auth.RequirePrincipal(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	user, err := s.users.FindByID(c.Request.Context(), principal.ID)
	if err != nil {
		abortWithError(c, auth.NewUnauthorized(err))
		return
	}

	c.JSON(http.StatusOK, profileResponse{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	})
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	principal, err := auth.RequirePrincipal(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	targetID := c.Param("id")
	if _, err := s.users.FindByID(c.Request.Context(), targetID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": errorBody{Kind: "not_found", Message: "user not found"},
			})
			return
		}
		abortWithError(c, err)
		return
	}

	event := audit.NewEvent(audit.EventTypeAuthorization, audit.ActionAccess, audit.OutcomeSuccess)
	event.Subject = &audit.Subject{ID: principal.ID, Role: principal.Role, AuthMethod: string(principal.AuthType)}
	event.Resource = &audit.Resource{Transport: "http", Method: c.Request.Method, Path: c.FullPath()}
	event.Metadata = map[string]interface{}{"targetUserId": targetID}
	s.audit.LogEvent(c.Request.Context(), event)

	c.Status(http.StatusNoContent)
}

func (s *Server) authEvent(c *gin.Context, action audit.Action, outcome audit.Outcome, username string) *audit.Event {
	event := audit.NewEvent(audit.EventTypeAuthentication, action, outcome)

	subject := &audit.Subject{IPAddress: c.ClientIP()}
	if principal := auth.PrincipalFromContext(c.Request.Context()); principal != nil {
		subject.ID = principal.ID
		subject.Role = principal.Role
		subject.AuthMethod = string(principal.AuthType)
	}
	if username != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]interface{}{}
		}
		event.Metadata["username"] = username
	}
	event.Subject = subject
	event.Resource = &audit.Resource{Transport: "http", Method: c.Request.Method, Path: c.FullPath()}

	return event
}
