// ABOUTME: Human-facing login and account pages for the gateway
// ABOUTME: Handles password auth, session cookies, registration, and CSRF

package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/deckard/voight-kampff/internal/store"
)

// Username validation regex: alphanumeric + underscores, 3-32 characters
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,31}$`)

const (
	// CSRFCookieName is the name of the CSRF token cookie
	CSRFCookieName = "vk_csrf"

	// SessionDuration is how long sessions last
	SessionDuration = 7 * 24 * time.Hour // 7 days

	// MinPasswordLength is the minimum accepted password length
	MinPasswordLength = 8
)

// dummyHash is compared against when the username doesn't exist, so failed
// logins take the same time either way.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const userContextKey contextKey = "web_user"

// Config holds web UI configuration
type Config struct {
	// SessionCookie is the name of the session cookie
	SessionCookie string

	// OpenRegistration allows new accounts after the first user exists
	OpenRegistration bool
}

// Store combines the user, session, and key operations the web UI needs.
type Store interface {
	store.UserStore
	store.SessionStore

	ListKeysByPrincipal(ctx context.Context, principal string) ([]*store.Key, error)
}

// Handler serves the login, registration, and account routes.
type Handler struct {
	store  Store
	config Config
	logger *slog.Logger
}

// New creates a web Handler.
func New(st Store, cfg Config) *Handler {
	return &Handler{
		store:  st,
		config: cfg,
		logger: slog.Default().With("component", "web"),
	}
}

// RegisterRoutes registers the web routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /login", h.handleLoginPage)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /logout", h.handleLogout)
	mux.HandleFunc("GET /register", h.handleRegisterPage)
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("GET /account", h.requireAuth(h.handleAccount))
}

// requireAuth wraps a handler to require a valid session
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.getUserFromSession(r)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

// getUserFromSession retrieves the authenticated user from the session cookie
func (h *Handler) getUserFromSession(r *http.Request) (*store.User, error) {
	cookie, err := r.Cookie(h.config.SessionCookie)
	if err != nil {
		return nil, err
	}

	session, err := h.store.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}

	return h.store.GetUser(r.Context(), session.UserID)
}

// getUserFromContext retrieves the authenticated user from the request context
func getUserFromContext(r *http.Request) *store.User {
	user, _ := r.Context().Value(userContextKey).(*store.User)
	return user
}

// ensureCSRFToken generates a CSRF token if not present
func (h *Handler) ensureCSRFToken(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	token, err := store.NewSessionToken()
	if err != nil {
		h.logger.Error("failed to generate CSRF token", "error", err)
		return "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return token
}

// validateCSRF checks the CSRF token from the form against the cookie
func (h *Handler) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	formToken := r.FormValue("csrf_token")
	return formToken != "" && formToken == cookie.Value
}

// createSession creates a session for a user and sets the cookie
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request, userID string) error {
	token, err := store.NewSessionToken()
	if err != nil {
		return err
	}

	session := &store.Session{
		ID:        token,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(SessionDuration),
	}

	if err := h.store.CreateSession(r.Context(), session); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.config.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// safeRedirectTarget validates the rd parameter. Only same-host-relative
// paths and absolute URLs are allowed through; everything else falls back
// to the account page so login can't be used as an open redirector for
// scheme tricks.
func safeRedirectTarget(rd string) string {
	if rd == "" {
		return "/account"
	}
	u, err := url.Parse(rd)
	if err != nil {
		return "/account"
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return rd
	}
	if u.Scheme == "" && u.Host == "" && strings.HasPrefix(u.Path, "/") {
		return rd
	}
	return "/account"
}

// handleLoginPage renders the login page
func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	rd := r.URL.Query().Get("rd")

	// Already logged in: skip the form
	if _, err := h.getUserFromSession(r); err == nil {
		http.Redirect(w, r, safeRedirectTarget(rd), http.StatusSeeOther)
		return
	}

	csrfToken := h.ensureCSRFToken(w, r)
	h.renderLoginPage(w, rd, "", csrfToken, h.registrationOpen(r.Context()))
}

// handleLogin processes the login form submission
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.loginError(w, r, "", "Invalid form data")
		return
	}

	rd := r.FormValue("rd")

	if !h.validateCSRF(r) {
		h.loginError(w, r, rd, "Invalid request, please try again")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		h.loginError(w, r, rd, "Username and password required")
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Dummy comparison keeps the timing flat for unknown usernames
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			h.loginError(w, r, rd, "Invalid username or password")
			return
		}
		h.logger.Error("failed to get user", "error", err)
		h.loginError(w, r, rd, "An error occurred")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		h.loginError(w, r, rd, "Invalid username or password")
		return
	}

	if err := h.createSession(w, r, user.ID); err != nil {
		h.logger.Error("failed to create session", "error", err)
		h.loginError(w, r, rd, "An error occurred")
		return
	}

	h.logger.Info("login successful", "username", username)
	http.Redirect(w, r, safeRedirectTarget(rd), http.StatusFound)
}

// loginError re-renders the login form with an error message
func (h *Handler) loginError(w http.ResponseWriter, r *http.Request, rd, msg string) {
	csrfToken := h.ensureCSRFToken(w, r)
	h.renderLoginPage(w, rd, msg, csrfToken, h.registrationOpen(r.Context()))
}

// handleLogout removes the current session and clears the cookie
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		if !h.validateCSRF(r) {
			h.logger.Warn("logout request with invalid CSRF token")
		}
	}

	cookie, err := r.Cookie(h.config.SessionCookie)
	if err == nil {
		_ = h.store.DeleteSession(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.config.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// registrationOpen reports whether a new account may be created: always for
// the very first user, afterwards only when open registration is enabled.
func (h *Handler) registrationOpen(ctx context.Context) bool {
	if h.config.OpenRegistration {
		return true
	}
	count, err := h.store.CountUsers(ctx)
	if err != nil {
		h.logger.Error("failed to count users", "error", err)
		return false
	}
	return count == 0
}

// handleRegisterPage renders the registration page
func (h *Handler) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if !h.registrationOpen(r.Context()) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	csrfToken := h.ensureCSRFToken(w, r)
	h.renderRegisterPage(w, "", csrfToken)
}

// handleRegister processes the registration form
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.registrationOpen(r.Context()) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.registerError(w, r, "Invalid form data")
		return
	}

	if !h.validateCSRF(r) {
		h.registerError(w, r, "Invalid request, please try again")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	displayName := r.FormValue("display_name")

	if username == "" || password == "" {
		h.registerError(w, r, "Username and password required")
		return
	}
	if errMsg := validateUsername(username); errMsg != "" {
		h.registerError(w, r, errMsg)
		return
	}
	if len(password) < MinPasswordLength {
		h.registerError(w, r, "Password must be at least 8 characters")
		return
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		h.registerError(w, r, "An error occurred")
		return
	}

	userID, err := store.NewSessionToken()
	if err != nil {
		h.logger.Error("failed to generate user ID", "error", err)
		h.registerError(w, r, "An error occurred")
		return
	}

	user := &store.User{
		ID:           userID,
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		CreatedAt:    time.Now(),
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			h.registerError(w, r, "Username already taken")
			return
		}
		h.logger.Error("failed to create user", "error", err)
		h.registerError(w, r, "An error occurred")
		return
	}

	if err := h.createSession(w, r, userID); err != nil {
		h.logger.Error("failed to create session", "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	h.logger.Info("user registered", "username", username)
	http.Redirect(w, r, "/account", http.StatusSeeOther)
}

// registerError re-renders the registration form with an error message
func (h *Handler) registerError(w http.ResponseWriter, r *http.Request, msg string) {
	csrfToken := h.ensureCSRFToken(w, r)
	h.renderRegisterPage(w, msg, csrfToken)
}

// handleAccount renders the account page with the user's keys
func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	keys, err := h.store.ListKeysByPrincipal(r.Context(), user.Username)
	if err != nil {
		h.logger.Error("failed to list keys", "error", err, "username", user.Username)
		keys = nil // Show the page without keys rather than failing outright
	}

	csrfToken := h.ensureCSRFToken(w, r)
	h.renderAccountPage(w, user, keys, csrfToken)
}

// validateUsername checks if a username meets requirements.
// Returns an error message or empty string if valid.
func validateUsername(username string) string {
	if len(username) < 3 {
		return "Username must be at least 3 characters"
	}
	if len(username) > 32 {
		return "Username must be at most 32 characters"
	}
	if !usernameRegex.MatchString(username) {
		return "Username must start with a letter and contain only letters, numbers, and underscores"
	}
	return ""
}
