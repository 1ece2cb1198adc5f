// ABOUTME: Credential resolver: picks the one candidate secret from a request
// ABOUTME: Strict carrier precedence: bearer, api-key header, session cookie

package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deckard/voight-kampff/internal/store"
)

// UnknownService is the target service when no forwarded host is present.
const UnknownService = "unknown"

// bearerPrefix is matched case-sensitively, single space, per the
// ForwardAuth contract.
const bearerPrefix = "Bearer "

// browserTokens are User-Agent fragments treated as interactive browsers.
var browserTokens = []string{"Mozilla", "Chrome", "Safari", "Firefox", "Edg"}

// Request is the authentication-relevant view of an inbound request, already
// lifted out of its HTTP carrier form.
type Request struct {
	ForwardedHost  string
	ForwardedURI   string
	ForwardedProto string
	Authorization  string
	APIKey         string // value of the dedicated API-key header
	SessionToken   string // session cookie value
	Accept         string
	UserAgent      string
}

// Candidate is the single credential value selected for verification.
type Candidate struct {
	Secret string
	// PreferredName is set when the candidate came from a session: the
	// signed-in user's display name, which overrides the key's stored
	// principal in the final decision.
	PreferredName string
}

// Resolution is the resolver's outcome. Exactly one of Candidate or
// LoginRedirect is set; when neither could be produced the resolver returns
// ErrUnauthenticated instead.
type Resolution struct {
	Service       string
	Candidate     *Candidate
	LoginRedirect bool
}

// SessionLookup resolves a session cookie to a signed-in user and that
// user's issued keys, newest first.
type SessionLookup interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	ListKeysByPrincipal(ctx context.Context, principal string) ([]*store.Key, error)
}

// Resolver determines which credential value a request presents, and for
// which target service.
type Resolver struct {
	sessions SessionLookup
	logger   *slog.Logger
}

// NewResolver creates a Resolver. sessions may be nil, which disables the
// session-cookie carrier (single-binary deployments without the web UI).
func NewResolver(sessions SessionLookup) *Resolver {
	return &Resolver{
		sessions: sessions,
		logger:   slog.Default().With("component", "resolver"),
	}
}

// ServiceFromHost derives the target service from the forwarded host name:
// the leading label up to the first dot (e.g. "tts" from "tts.example.com").
func ServiceFromHost(host string) string {
	if host == "" {
		return UnknownService
	}
	service, _, _ := strings.Cut(host, ".")
	if service == "" {
		return UnknownService
	}
	return service
}

// Resolve evaluates the carriers in strict precedence order and returns the
// first candidate produced. With no candidate, browser-looking requests get
// a login redirect resolution; everything else is ErrUnauthenticated.
// Store failures during session resolution propagate as errors.
func (r *Resolver) Resolve(ctx context.Context, req *Request) (*Resolution, error) {
	res := &Resolution{Service: ServiceFromHost(req.ForwardedHost)}

	strategies := []func(ctx context.Context, req *Request, service string) (*Candidate, error){
		r.fromBearer,
		r.fromAPIKeyHeader,
		r.fromSession,
	}

	for _, strategy := range strategies {
		candidate, err := strategy(ctx, req, res.Service)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			res.Candidate = candidate
			return res, nil
		}
	}

	if isBrowser(req.Accept, req.UserAgent) {
		res.LoginRedirect = true
		return res, nil
	}

	return nil, ErrUnauthenticated
}

// fromBearer extracts the token from an "Authorization: Bearer <secret>"
// header. A non-Bearer Authorization value declines rather than failing, so
// later carriers still get a look.
func (r *Resolver) fromBearer(_ context.Context, req *Request, _ string) (*Candidate, error) {
	if !strings.HasPrefix(req.Authorization, bearerPrefix) {
		return nil, nil
	}
	secret := strings.TrimSpace(strings.TrimPrefix(req.Authorization, bearerPrefix))
	if secret == "" {
		return nil, nil
	}
	return &Candidate{Secret: secret}, nil
}

// fromAPIKeyHeader uses the dedicated API-key header value verbatim.
func (r *Resolver) fromAPIKeyHeader(_ context.Context, req *Request, _ string) (*Candidate, error) {
	secret := strings.TrimSpace(req.APIKey)
	if secret == "" {
		return nil, nil
	}
	return &Candidate{Secret: secret}, nil
}

// fromSession resolves the session cookie to a user and picks that user's
// newest active key whose scopes allow the target service. An unknown or
// expired session declines; a store failure propagates.
func (r *Resolver) fromSession(ctx context.Context, req *Request, service string) (*Candidate, error) {
	if r.sessions == nil || req.SessionToken == "" {
		return nil, nil
	}

	session, err := r.sessions.GetSession(ctx, req.SessionToken)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	user, err := r.sessions.GetUser(ctx, session.UserID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving session user: %w", err)
	}

	keys, err := r.sessions.ListKeysByPrincipal(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("listing session user keys: %w", err)
	}

	for _, key := range keys {
		// Only active + scope are checked here; expiry is the engine's
		// call so an expired key still denies with its own reason.
		if !key.Active || !key.Scopes.Allows(service) {
			continue
		}
		return &Candidate{Secret: key.Secret, PreferredName: user.DisplayName}, nil
	}

	r.logger.Debug("session user has no usable key for service", "service", service, "username", user.Username)
	return nil, nil
}

// isBrowser applies the interactive-browser heuristic: an Accept header
// naming HTML, or a recognized browser token in the User-Agent.
func isBrowser(accept, userAgent string) bool {
	if strings.Contains(accept, "text/html") {
		return true
	}
	for _, token := range browserTokens {
		if strings.Contains(userAgent, token) {
			return true
		}
	}
	return false
}
