// ABOUTME: Data types, sentinel errors, and interfaces for the credential store
// ABOUTME: API keys, human users, and browser sessions persisted in SQLite

package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"
)

// Sentinel errors returned by store operations.
var (
	ErrKeyNotFound      = errors.New("API key not found")
	ErrDuplicateKeyName = errors.New("an API key with this name already exists")
	ErrUserNotFound     = errors.New("user not found")
	ErrUsernameExists   = errors.New("username already exists")
	ErrSessionNotFound  = errors.New("session not found")
)

// Key is an issued API key. Secret is the literal bearer value presented by
// clients; it is unique by construction (48 bytes of crypto/rand entropy).
type Key struct {
	ID        string
	Name      string
	Secret    string
	Principal string
	Scopes    ScopeSet
	Active    bool
	CreatedAt time.Time
	LastUsed  *time.Time
	ExpiresAt *time.Time
}

// User is a registered human account that can sign in through the web UI.
// API keys are linked to users by Key.Principal == User.Username.
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt hash
	DisplayName  string
	CreatedAt    time.Time
}

// Session is an authenticated browser session backed by a cookie.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// KeyStore defines persistence for API keys.
type KeyStore interface {
	CreateKey(ctx context.Context, key *Key) error
	GetKey(ctx context.Context, id string) (*Key, error)
	GetKeyBySecret(ctx context.Context, secret string) (*Key, error)
	ListKeys(ctx context.Context) ([]*Key, error)
	ListKeysByPrincipal(ctx context.Context, principal string) ([]*Key, error)
	SetKeyActive(ctx context.Context, id string, active bool) error
	TouchKey(ctx context.Context, id string, when time.Time) error
	DeleteKey(ctx context.Context, id string) error
}

// UserStore defines persistence for human accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CountUsers(ctx context.Context) (int, error)
}

// SessionStore defines persistence for browser sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) error
}

const secretBytes = 48

// NewSecret generates a new API key secret: 48 bytes of cryptographically
// strong randomness, base64url-encoded without padding. Collisions are
// negligible by construction, so uniqueness is not re-checked at write time.
func NewSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewSessionToken generates an opaque session identifier: 32 random bytes,
// hex-encoded.
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
