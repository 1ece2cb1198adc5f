// ABOUTME: HTTP boundary for the gateway: routing, lifecycle, JSON helpers
// ABOUTME: Mounts /verify, /keys management, web login, health, and metrics

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/deckard/voight-kampff/internal/config"
	"github.com/deckard/voight-kampff/internal/metrics"
	"github.com/deckard/voight-kampff/internal/store"
	"github.com/deckard/voight-kampff/internal/verify"
	"github.com/deckard/voight-kampff/internal/web"
)

// shutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

// sessionSweepInterval is how often expired sessions are purged.
const sessionSweepInterval = time.Hour

// Version is reported by the service descriptor endpoint.
var Version = "dev"

// Store is the full persistence surface the server needs.
type Store interface {
	store.KeyStore
	store.UserStore
	store.SessionStore
}

// Server wires the resolver, engine, store, and web UI behind one mux.
type Server struct {
	cfg      *config.Config
	store    Store
	resolver *verify.Resolver
	engine   *verify.Engine
	metrics  *metrics.Metrics
	web      *web.Handler
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates a Server from loaded configuration and an open store.
func New(cfg *config.Config, st Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		resolver: verify.NewResolver(st),
		engine:   verify.NewEngine(st),
		metrics:  metrics.New(),
		logger:   logger.With("component", "server"),
	}

	s.web = web.New(st, web.Config{
		SessionCookie:    cfg.Auth.SessionCookie,
		OpenRegistration: cfg.Auth.OpenRegistration,
	})

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// registerRoutes mounts all handlers on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Verification endpoint consumed by the reverse proxy (ForwardAuth).
	mux.HandleFunc("GET /verify", s.handleVerify)

	// Key management.
	mux.HandleFunc("POST /keys", s.handleCreateKey)
	mux.HandleFunc("GET /keys", s.handleListKeys)
	mux.HandleFunc("DELETE /keys/{id}", s.handleDeleteKey)
	mux.HandleFunc("PATCH /keys/{id}/toggle", s.handleToggleKey)

	// Service descriptor and health.
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, s.metrics.Handler())
	}

	// Human login/session routes.
	s.web.RegisterRoutes(mux)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.sweepSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Server.HTTPAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// sweepSessions periodically purges expired sessions until ctx is cancelled.
func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.DeleteExpiredSessions(ctx); err != nil {
				s.logger.Error("failed to purge expired sessions", "error", err)
			}
		}
	}
}

// Handler exposes the routed mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleRoot serves the service descriptor.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service":     "Voight-Kampff",
		"version":     Version,
		"description": "API Key Authentication Service",
		"endpoints": map[string]string{
			"verify": "/verify - Verify API key (used by reverse proxy ForwardAuth)",
			"keys":   "/keys - Manage API keys",
			"health": "/health - Health check",
		},
	})
}

// handleHealth serves the liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "operational",
		"test":   "positive",
	})
}

// writeJSON writes a JSON response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
