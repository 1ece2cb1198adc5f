// ABOUTME: ForwardAuth verification endpoint: resolves a credential and
// ABOUTME: runs the verification engine, mapping outcomes to HTTP statuses

package server

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/deckard/voight-kampff/internal/verify"
)

// verifyResponse is the JSON body returned on an allowed verification.
type verifyResponse struct {
	Valid   bool     `json:"valid"`
	User    string   `json:"user"`
	Service string   `json:"service"`
	Scopes  []string `json:"scopes"`
}

// handleVerify resolves a credential from the forwarded request and runs it
// through the engine. The reverse proxy treats 2xx as allow and anything
// else as deny, so the status code is the real contract here.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := verify.Request{
		ForwardedHost:  r.Header.Get("X-Forwarded-Host"),
		ForwardedURI:   r.Header.Get("X-Forwarded-Uri"),
		ForwardedProto: r.Header.Get("X-Forwarded-Proto"),
		Authorization:  r.Header.Get("Authorization"),
		APIKey:         r.Header.Get(s.cfg.Auth.APIKeyHeader),
		Accept:         r.Header.Get("Accept"),
		UserAgent:      r.Header.Get("User-Agent"),
	}
	if cookie, err := r.Cookie(s.cfg.Auth.SessionCookie); err == nil {
		req.SessionToken = cookie.Value
	}

	res, err := s.resolver.Resolve(r.Context(), &req)
	if err != nil {
		s.denyVerify(w, err, start)
		return
	}

	if res.LoginRedirect {
		s.metrics.ObserveVerify("redirect", "unauthenticated", time.Since(start))
		http.Redirect(w, r, s.loginURL(req), http.StatusFound)
		return
	}

	dec, err := s.engine.Verify(r.Context(), res.Candidate.Secret, res.Service, res.Candidate.PreferredName)
	if err != nil {
		s.denyVerify(w, err, start)
		return
	}

	s.metrics.ObserveVerify("allow", "ok", time.Since(start))

	scopes := dec.Scopes.List()
	w.Header().Set("X-VK-User", dec.Principal)
	w.Header().Set("X-VK-Service", dec.Service)
	w.Header().Set("X-VK-Scopes", dec.Scopes.String())
	s.writeJSON(w, http.StatusOK, verifyResponse{
		Valid:   true,
		User:    dec.Principal,
		Service: dec.Service,
		Scopes:  scopes,
	})
}

// denyVerify maps a resolver or engine error to the right status code.
// Store failures are never reported as denials.
func (s *Server) denyVerify(w http.ResponseWriter, err error, start time.Time) {
	reason := verify.Reason(err)

	if !verify.IsDeny(err) {
		s.logger.Error("verification failed", "error", err)
		s.metrics.ObserveVerify("error", reason, time.Since(start))
		s.writeError(w, http.StatusInternalServerError, "verification unavailable")
		return
	}

	s.metrics.ObserveVerify("deny", reason, time.Since(start))

	switch {
	case errors.Is(err, verify.ErrUnauthenticated):
		s.writeError(w, http.StatusUnauthorized, "Missing API key")
	case errors.Is(err, verify.ErrInvalidKey):
		s.writeError(w, http.StatusUnauthorized, "Invalid API key")
	case errors.Is(err, verify.ErrKeyDisabled):
		s.writeError(w, http.StatusForbidden, "API key is disabled")
	case errors.Is(err, verify.ErrKeyExpired):
		s.writeError(w, http.StatusForbidden, "API key has expired")
	case errors.Is(err, verify.ErrScopeForbidden):
		s.writeError(w, http.StatusForbidden, "API key not authorized for this service")
	default:
		s.writeError(w, http.StatusUnauthorized, "Unauthorized")
	}
}

// loginURL builds the login redirect target, carrying the original URL in
// the rd query parameter so login can send the browser back afterwards.
func (s *Server) loginURL(req verify.Request) string {
	target := s.cfg.Auth.LoginURL

	if req.ForwardedHost != "" {
		proto := req.ForwardedProto
		if proto == "" {
			proto = "https"
		}
		original := proto + "://" + req.ForwardedHost + req.ForwardedURI
		target += "?rd=" + url.QueryEscape(original)
	}
	return target
}
