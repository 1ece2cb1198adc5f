// ABOUTME: Verification engine: ordered validity checks against the key store
// ABOUTME: ALLOW commits the last-used bookkeeping write before returning

package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deckard/voight-kampff/internal/store"
)

// Decision is the payload of a successful verification.
type Decision struct {
	Principal string
	Service   string
	Scopes    store.ScopeSet
}

// KeyLookup is the credential-lookup surface the engine needs from storage.
type KeyLookup interface {
	GetKeyBySecret(ctx context.Context, secret string) (*store.Key, error)
	TouchKey(ctx context.Context, id string, when time.Time) error
}

// Engine runs the ordered validity checks for one candidate credential.
// Each verification is a fresh store read; the engine holds no key state.
type Engine struct {
	keys   KeyLookup
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an Engine backed by the given key lookup.
func NewEngine(keys KeyLookup) *Engine {
	return &Engine{
		keys:   keys,
		logger: slog.Default().With("component", "verify"),
		now:    time.Now,
	}
}

// Verify checks the candidate secret against the target service. The checks
// short-circuit in a fixed order: lookup, active flag, expiration, scope.
// On success the key's last-used timestamp is durably advanced before the
// decision is returned; a failed bookkeeping write is an internal error,
// not a denial. preferredName, when non-empty, overrides the key's stored
// principal in the decision payload.
func (e *Engine) Verify(ctx context.Context, secret, service, preferredName string) (*Decision, error) {
	key, err := e.keys.GetKeyBySecret(ctx, secret)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, e.deny(service, ErrInvalidKey)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up api key: %w", err)
	}

	if !key.Active {
		return nil, e.deny(service, ErrKeyDisabled)
	}

	now := e.now()
	if key.ExpiresAt != nil && key.ExpiresAt.Before(now) {
		return nil, e.deny(service, ErrKeyExpired)
	}

	if !key.Scopes.Allows(service) {
		return nil, e.deny(service, fmt.Errorf("%w %q", ErrScopeForbidden, service))
	}

	if err := e.keys.TouchKey(ctx, key.ID, now); err != nil {
		return nil, fmt.Errorf("recording key use: %w", err)
	}

	principal := key.Principal
	if preferredName != "" {
		principal = preferredName
	}

	e.logger.Debug("verification allowed", "service", service, "principal", principal)
	return &Decision{
		Principal: principal,
		Service:   service,
		Scopes:    key.Scopes,
	}, nil
}

// deny logs the denial with its reason code and service context. The
// presented secret is never logged.
func (e *Engine) deny(service string, err error) error {
	e.logger.Warn("verification denied", "service", service, "reason", Reason(err))
	return err
}
