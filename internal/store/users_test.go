// ABOUTME: Tests for user and session persistence
// ABOUTME: Covers duplicate usernames, session expiry, and cascade cleanup

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser(username string) *User {
	return &User{
		ID:           "user-" + username,
		Username:     username,
		PasswordHash: "$2a$10$fakehashfakehashfakehash",
		DisplayName:  "Test " + username,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_CreateUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("rachael")))

	got, err := s.GetUserByUsername(ctx, "rachael")
	require.NoError(t, err)
	assert.Equal(t, "user-rachael", got.ID)
	assert.Equal(t, "Test rachael", got.DisplayName)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_CreateUser_DuplicateUsername(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("rachael")))

	dup := testUser("rachael")
	dup.ID = "user-other"
	assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrUsernameExists)
}

func TestStore_GetUser_NotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.GetUserByUsername(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStore_Sessions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("rachael")))

	session := &Session{
		ID:        "session-1",
		UserID:    "user-rachael",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		ExpiresAt: time.Now().UTC().Add(time.Hour).Truncate(time.Second),
	}
	require.NoError(t, s.CreateSession(ctx, session))

	got, err := s.GetSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "user-rachael", got.UserID)

	require.NoError(t, s.DeleteSession(ctx, "session-1"))
	_, err = s.GetSession(ctx, "session-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_GetSession_Expired(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("rachael")))

	session := &Session{
		ID:        "session-stale",
		UserID:    "user-rachael",
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, session))

	_, err := s.GetSession(ctx, "session-stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// DeleteExpiredSessions should remove the stale row without error.
	require.NoError(t, s.DeleteExpiredSessions(ctx))
}
