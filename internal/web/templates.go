// ABOUTME: Template rendering functions for the login and account pages
// ABOUTME: Loads templates from the embedded filesystem and renders them

package web

import (
	"html/template"
	"net/http"

	"github.com/deckard/voight-kampff/internal/store"
)

// Template data types
type loginData struct {
	Title            string
	Error            string
	Redirect         string
	CSRFToken        string
	RegistrationOpen bool
}

type registerData struct {
	Title     string
	Error     string
	CSRFToken string
}

type accountData struct {
	Title     string
	User      *store.User
	Keys      []*store.Key
	CSRFToken string
}

// renderLoginPage renders the login page
func (h *Handler) renderLoginPage(w http.ResponseWriter, rd, errorMsg, csrfToken string, registrationOpen bool) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/login.html"))

	data := loginData{
		Title:            "Sign In",
		Error:            errorMsg,
		Redirect:         rd,
		CSRFToken:        csrfToken,
		RegistrationOpen: registrationOpen,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render login page", "error", err)
	}
}

// renderRegisterPage renders the registration page
func (h *Handler) renderRegisterPage(w http.ResponseWriter, errorMsg, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/register.html"))

	data := registerData{
		Title:     "Create Account",
		Error:     errorMsg,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render register page", "error", err)
	}
}

// renderAccountPage renders the account page with the user's keys
func (h *Handler) renderAccountPage(w http.ResponseWriter, user *store.User, keys []*store.Key, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/account.html"))

	data := accountData{
		Title:     "Account",
		User:      user,
		Keys:      keys,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render account page", "error", err)
	}
}
