// Package users provides the account directory backing authentication.
package users

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors for user lookups.
var (
	// ErrNotFound indicates that no matching user exists.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateUsername indicates that the username is already taken.
	ErrDuplicateUsername = errors.New("username already taken")
)

// User is an account record.
type User struct {
	// ID is the stable unique identifier.
	ID string `json:"id"`

	// Username is the login name.
	Username string `json:"username"`

	// FirstName and LastName are carried into issued tokens.
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`

	// Role is the single role assigned to the account.
	Role string `json:"role"`

	// PasswordHash is the bcrypt hash of the password.
	PasswordHash []byte `json:"-"`

	// APIKey is the machine credential for the account, if any.
	APIKey string `json:"-"`
}

// CheckPassword compares the given password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) == nil
}

// Service looks up user accounts.
type Service interface {
	// FindByUsername returns the user with the given login name.
	// Returns ErrNotFound when no such user exists.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByID returns the user with the given ID.
	// Returns ErrNotFound when no such user exists.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByAPIKey returns the user owning the given API key.
	// Returns ErrNotFound when no such user exists.
	FindByAPIKey(ctx context.Context, apiKey string) (*User, error)
}

// InMemoryService implements Service with an in-memory directory.
type InMemoryService struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byUsername map[string]*User
	byAPIKey   map[string]*User
}

// NewInMemoryService creates an empty in-memory directory.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		byID:       make(map[string]*User),
		byUsername: make(map[string]*User),
		byAPIKey:   make(map[string]*User),
	}
}

// Add registers a user. The password is hashed with bcrypt.
func (s *InMemoryService) Add(user User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = hash

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[user.Username]; exists {
		return ErrDuplicateUsername
	}

	stored := user
	s.byID[stored.ID] = &stored
	s.byUsername[stored.Username] = &stored
	if stored.APIKey != "" {
		s.byAPIKey[stored.APIKey] = &stored
	}

	return nil
}

// FindByUsername implements Service.
func (s *InMemoryService) FindByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(user), nil
}

// FindByID implements Service.
func (s *InMemoryService) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(user), nil
}

// FindByAPIKey implements Service.
func (s *InMemoryService) FindByAPIKey(_ context.Context, apiKey string) (*User, error) {
	if apiKey == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byAPIKey[apiKey]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(user), nil
}

func copyUser(u *User) *User {
	out := *u
	return &out
}
