package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *InMemoryService {
	t.Helper()

	s, err := NewSeededService([]SeedAccount{
		{
			ID:        "u-1",
			Username:  "alice",
			Password:  "correct horse",
			FirstName: "Alice",
			LastName:  "Martin",
			Role:      "user",
			APIKey:    "ak-alice",
		},
		{
			ID:        "u-2",
			Username:  "admin",
			Password:  "hunter2",
			FirstName: "Ada",
			LastName:  "Admin",
			Role:      "admin",
		},
	})
	require.NoError(t, err)
	return s
}

func TestFindByUsername(t *testing.T) {
	t.Parallel()

	s := newTestService(t)
	ctx := context.Background()

	user, err := s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "user", user.Role)

	_, err = s.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByID(t *testing.T) {
	t.Parallel()

	s := newTestService(t)
	ctx := context.Background()

	user, err := s.FindByID(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)

	_, err = s.FindByID(ctx, "u-999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByAPIKey(t *testing.T) {
	t.Parallel()

	s := newTestService(t)
	ctx := context.Background()

	user, err := s.FindByAPIKey(ctx, "ak-alice")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	_, err = s.FindByAPIKey(ctx, "ak-unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	// An account without an API key must not be matched by the empty key.
	_, err = s.FindByAPIKey(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckPassword(t *testing.T) {
	t.Parallel()

	s := newTestService(t)
	ctx := context.Background()

	user, err := s.FindByUsername(ctx, "alice")
	require.NoError(t, err)

	assert.True(t, user.CheckPassword("correct horse"))
	assert.False(t, user.CheckPassword("wrong"))
	assert.False(t, user.CheckPassword(""))
}

func TestAddDuplicateUsername(t *testing.T) {
	t.Parallel()

	s := newTestService(t)

	err := s.Add(User{ID: "u-3", Username: "alice"}, "pw")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}
