package grpcserver

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/motorland/carmarket/internal/audit"
	"github.com/motorland/carmarket/internal/auth"
	"github.com/motorland/carmarket/internal/auth/session"
	"github.com/motorland/carmarket/internal/users"
)

// Full method names. The per-method policy table and the service
// descriptors are keyed on these.
const (
	authServiceName = "carmarket.v1.AuthService"
	userServiceName = "carmarket.v1.UserService"

	methodLogin      = "/" + authServiceName + "/Login"
	methodRefresh    = "/" + authServiceName + "/Refresh"
	methodLogout     = "/" + authServiceName + "/Logout"
	methodGetProfile = "/" + userServiceName + "/GetProfile"
	methodDeleteUser = "/" + userServiceName + "/DeleteUser"
)

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token for rotation.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest carries a refresh token for revocation.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutResponse is the empty logout reply.
type LogoutResponse struct{}

// TokenPairResponse mirrors the REST login and refresh response body.
type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// GetProfileRequest is the empty profile request.
type GetProfileRequest struct{}

// ProfileResponse is the authenticated caller's own account.
type ProfileResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// DeleteUserRequest names the account to delete.
type DeleteUserRequest struct {
	UserID string `json:"userId"`
}

// DeleteUserResponse is the empty delete reply.
type DeleteUserResponse struct{}

// AuthServiceServer is the server API for the auth service.
type AuthServiceServer interface {
	Login(ctx context.Context, req *LoginRequest) (*TokenPairResponse, error)
	Refresh(ctx context.Context, req *RefreshRequest) (*TokenPairResponse, error)
	Logout(ctx context.Context, req *LogoutRequest) (*LogoutResponse, error)
}

// UserServiceServer is the server API for the user service.
type UserServiceServer interface {
	GetProfile(ctx context.Context, req *GetProfileRequest) (*ProfileResponse, error)
	DeleteUser(ctx context.Context, req *DeleteUserRequest) (*DeleteUserResponse, error)
}

// Service implements both gRPC services over the session manager and
// user store. Authentication, role checks, and rate limiting run in the
// interceptor chain before any method here is reached.
type Service struct {
	sessions *session.Manager
	users    users.Service
	audit    audit.Logger
}

// NewService creates the service implementation.
func NewService(sessions *session.Manager, userSvc users.Service, auditLog audit.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NopLogger()
	}
	return &Service{
		sessions: sessions,
		users:    userSvc,
		audit:    auditLog,
	}
}

// Login exchanges a username and password for a token pair.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*TokenPairResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "username and password are required")
	}

	pair, err := s.sessions.Login(ctx, req.Username, req.Password)
	if err != nil {
		s.audit.LogEvent(ctx, s.authEvent(ctx, methodLogin, audit.ActionLogin, audit.OutcomeFailure, req.Username))
		return nil, err
	}

	s.audit.LogEvent(ctx, s.authEvent(ctx, methodLogin, audit.ActionLogin, audit.OutcomeSuccess, req.Username))
	return tokenPairResponse(pair), nil
}

// Refresh rotates a refresh token into a fresh session.
func (s *Service) Refresh(ctx context.Context, req *RefreshRequest) (*TokenPairResponse, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refreshToken is required")
	}

	pair, err := s.sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		s.audit.LogEvent(ctx, s.authEvent(ctx, methodRefresh, audit.ActionTokenRefresh, audit.OutcomeFailure, ""))
		return nil, err
	}

	s.audit.LogEvent(ctx, s.authEvent(ctx, methodRefresh, audit.ActionTokenRefresh, audit.OutcomeSuccess, ""))
	return tokenPairResponse(pair), nil
}

// Logout revokes the presented refresh token. Always succeeds.
func (s *Service) Logout(ctx context.Context, req *LogoutRequest) (*LogoutResponse, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refreshToken is required")
	}

	if err := s.sessions.Logout(ctx, req.RefreshToken); err != nil {
		return nil, err
	}

	s.audit.LogEvent(ctx, s.authEvent(ctx, methodLogout, audit.ActionLogout, audit.OutcomeSuccess, ""))
	return &LogoutResponse{}, nil
}

// GetProfile returns the authenticated caller's own account.
func (s *Service) GetProfile(ctx context.Context, _ *GetProfileRequest) (*ProfileResponse, error) {
	principal, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, principal.ID)
	if err != nil {
		return nil, auth.NewUnauthorized(err)
	}

	return &ProfileResponse{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}, nil
}

// DeleteUser removes an account. The interceptor chain has already
// verified the admin role.
func (s *Service) DeleteUser(ctx context.Context, req *DeleteUserRequest) (*DeleteUserResponse, error) {
	principal, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}

	if _, err := s.users.FindByID(ctx, req.UserID); err != nil {
		return nil, status.Error(codes.NotFound, "user not found")
	}

	event := audit.NewEvent(audit.EventTypeAuthorization, audit.ActionAccess, audit.OutcomeSuccess)
	event.Subject = &audit.Subject{ID: principal.ID, Role: principal.Role, AuthMethod: string(principal.AuthType)}
	event.Resource = &audit.Resource{Transport: "grpc", Method: methodDeleteUser}
	event.Metadata = map[string]interface{}{"targetUserId": req.UserID}
	s.audit.LogEvent(ctx, event)

	return &DeleteUserResponse{}, nil
}

func tokenPairResponse(pair *session.TokenPair) *TokenPairResponse {
	return &TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}
}

func (s *Service) authEvent(ctx context.Context, method string, action audit.Action, outcome audit.Outcome, username string) *audit.Event {
	event := audit.NewEvent(audit.EventTypeAuthentication, action, outcome)

	subject := &audit.Subject{IPAddress: peerAddr(ctx)}
	if principal := auth.PrincipalFromContext(ctx); principal != nil {
		subject.ID = principal.ID
		subject.Role = principal.Role
		subject.AuthMethod = string(principal.AuthType)
	}
	if username != "" {
		event.Metadata = map[string]interface{}{"username": username}
	}
	event.Subject = subject
	event.Resource = &audit.Resource{Transport: "grpc", Method: method}

	return event
}

// peerAddr returns the remote address of the calling peer.
func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok {
		return p.Addr.String()
	}
	return ""
}

var (
	_ AuthServiceServer = (*Service)(nil)
	_ UserServiceServer = (*Service)(nil)
)
