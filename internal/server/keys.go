// ABOUTME: API key management endpoints: create, list, toggle, delete
// ABOUTME: The plaintext secret is returned exactly once, at creation

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deckard/voight-kampff/internal/store"
)

// createKeyRequest is the JSON body accepted by POST /keys.
type createKeyRequest struct {
	Name          string   `json:"name"`
	User          string   `json:"user"`
	Scopes        []string `json:"scopes"`
	ExpiresInDays int      `json:"expires_in_days"`
}

// keyInfo is the secret-free view of a key returned by list endpoints.
type keyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	User      string     `json:"user"`
	Scopes    []string   `json:"scopes"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func keyInfoFrom(k *store.Key) keyInfo {
	return keyInfo{
		ID:        k.ID,
		Name:      k.Name,
		User:      k.Principal,
		Scopes:    k.Scopes.List(),
		Active:    k.Active,
		CreatedAt: k.CreatedAt,
		LastUsed:  k.LastUsed,
		ExpiresAt: k.ExpiresAt,
	}
}

// handleCreateKey mints a new API key. The response carries the plaintext
// secret; it is not retrievable afterwards.
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.User = strings.TrimSpace(req.User)
	if req.Name == "" || req.User == "" {
		s.writeError(w, http.StatusBadRequest, "name and user are required")
		return
	}
	if req.ExpiresInDays < 0 {
		s.writeError(w, http.StatusBadRequest, "expires_in_days must not be negative")
		return
	}

	secret, err := store.NewSecret()
	if err != nil {
		s.logger.Error("failed to generate key secret", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create key")
		return
	}

	key := &store.Key{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Secret:    secret,
		Principal: req.User,
		Scopes:    store.NewScopeSet(req.Scopes...),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if req.ExpiresInDays > 0 {
		expires := key.CreatedAt.AddDate(0, 0, req.ExpiresInDays)
		key.ExpiresAt = &expires
	}

	if err := s.store.CreateKey(r.Context(), key); err != nil {
		if errors.Is(err, store.ErrDuplicateKeyName) {
			s.writeError(w, http.StatusBadRequest, "a key with that name already exists")
			return
		}
		s.logger.Error("failed to create key", "error", err, "name", key.Name)
		s.writeError(w, http.StatusInternalServerError, "failed to create key")
		return
	}

	s.logger.Info("api key created", "id", key.ID, "name", key.Name, "user", key.Principal)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"api_key":    secret,
		"user":       key.Principal,
		"scopes":     key.Scopes.List(),
		"expires_at": key.ExpiresAt,
	})
}

// handleListKeys returns all keys, newest first, without secrets.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListKeys(r.Context())
	if err != nil {
		s.logger.Error("failed to list keys", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}

	infos := make([]keyInfo, 0, len(keys))
	for _, k := range keys {
		infos = append(infos, keyInfoFrom(k))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"keys": infos})
}

// handleDeleteKey removes a key permanently.
func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.store.DeleteKey(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			s.writeError(w, http.StatusNotFound, "key not found")
			return
		}
		s.logger.Error("failed to delete key", "error", err, "id", id)
		s.writeError(w, http.StatusInternalServerError, "failed to delete key")
		return
	}

	s.logger.Info("api key deleted", "id", id)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// handleToggleKey flips a key's active flag.
func (s *Server) handleToggleKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	key, err := s.store.GetKey(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			s.writeError(w, http.StatusNotFound, "key not found")
			return
		}
		s.logger.Error("failed to load key", "error", err, "id", id)
		s.writeError(w, http.StatusInternalServerError, "failed to toggle key")
		return
	}

	if err := s.store.SetKeyActive(r.Context(), id, !key.Active); err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			s.writeError(w, http.StatusNotFound, "key not found")
			return
		}
		s.logger.Error("failed to toggle key", "error", err, "id", id)
		s.writeError(w, http.StatusInternalServerError, "failed to toggle key")
		return
	}

	s.logger.Info("api key toggled", "id", id, "active", !key.Active)
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": !key.Active})
}
