// ABOUTME: Tests for the HTTP boundary: verification, key management,
// ABOUTME: health, and the service descriptor, via httptest

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckard/voight-kampff/internal/config"
	"github.com/deckard/voight-kampff/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: "unused"},
		Auth: config.AuthConfig{
			APIKeyHeader:  config.DefaultAPIKeyHeader,
			SessionCookie: config.DefaultSessionCookie,
			LoginURL:      config.DefaultLoginURL,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: config.DefaultMetricsPath},
	}
}

func setupServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return New(testConfig(), st, nil), st
}

func createTestKey(t *testing.T, st *store.SQLiteStore, name, principal string, scopes ...string) (*store.Key, string) {
	t.Helper()

	secret, err := store.NewSecret()
	require.NoError(t, err)

	key := &store.Key{
		ID:        "key-" + name,
		Name:      name,
		Secret:    secret,
		Principal: principal,
		Scopes:    store.NewScopeSet(scopes...),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateKey(context.Background(), key))
	return key, secret
}

func doVerify(s *Server, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/verify", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestVerify_BearerAllow(t *testing.T) {
	s, st := setupServer(t)
	_, secret := createTestKey(t, st, "tts-key", "rachael", "tts")

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
		r.Header.Set("Authorization", "Bearer "+secret)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rachael", rec.Header().Get("X-VK-User"))
	assert.Equal(t, "tts", rec.Header().Get("X-VK-Service"))
	assert.Equal(t, "tts", rec.Header().Get("X-VK-Scopes"))

	var body verifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Valid)
	assert.Equal(t, "rachael", body.User)
	assert.Equal(t, "tts", body.Service)
	assert.Equal(t, []string{"tts"}, body.Scopes)
}

func TestVerify_AllowTouchesLastUsed(t *testing.T) {
	s, st := setupServer(t)
	key, secret := createTestKey(t, st, "tts-key", "rachael", "tts")

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
		r.Header.Set("Authorization", "Bearer "+secret)
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := st.GetKey(context.Background(), key.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsed)
}

func TestVerify_APIKeyHeader(t *testing.T) {
	s, st := setupServer(t)
	_, secret := createTestKey(t, st, "tts-key", "rachael", "tts")

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
		r.Header.Set("X-API-Key", secret)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerify_NoCredential(t *testing.T) {
	s, _ := setupServer(t)

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing API key")
}

func TestVerify_InvalidKey(t *testing.T) {
	s, _ := setupServer(t)

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
		r.Header.Set("Authorization", "Bearer not-a-real-key")
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid API key")
}

func TestVerify_DisabledKey(t *testing.T) {
	s, st := setupServer(t)
	key, secret := createTestKey(t, st, "tts-key", "rachael", "tts")
	require.NoError(t, st.SetKeyActive(context.Background(), key.ID, false))

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
		r.Header.Set("Authorization", "Bearer "+secret)
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")
}

func TestVerify_ExpiredKey(t *testing.T) {
	s, st := setupServer(t)

	secret, err := store.NewSecret()
	require.NoError(t, err)
	expired := time.Now().UTC().Add(-time.Hour)
	key := &store.Key{
		ID:        "key-expired",
		Name:      "expired-key",
		Secret:    secret,
		Principal: "rachael",
		Scopes:    store.NewScopeSet("tts"),
		Active:    true,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
		ExpiresAt: &expired,
	}
	require.NoError(t, st.CreateKey(context.Background(), key))

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
		r.Header.Set("Authorization", "Bearer "+secret)
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestVerify_ScopeForbidden(t *testing.T) {
	s, st := setupServer(t)
	_, secret := createTestKey(t, st, "tts-key", "rachael", "tts")

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "llm.example.com")
		r.Header.Set("Authorization", "Bearer "+secret)
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not authorized")
}

func TestVerify_WildcardScope(t *testing.T) {
	s, st := setupServer(t)
	_, secret := createTestKey(t, st, "admin-key", "deckard", "*")

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "anything.example.com")
		r.Header.Set("Authorization", "Bearer "+secret)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anything", rec.Header().Get("X-VK-Service"))
}

func TestVerify_MissingHostIsUnknownService(t *testing.T) {
	s, st := setupServer(t)
	_, secret := createTestKey(t, st, "admin-key", "deckard", "*")

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+secret)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unknown", rec.Header().Get("X-VK-Service"))
}

func TestVerify_BrowserRedirectsToLogin(t *testing.T) {
	s, _ := setupServer(t)

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
		r.Header.Set("X-Forwarded-Uri", "/speak?voice=on")
		r.Header.Set("X-Forwarded-Proto", "https")
		r.Header.Set("Accept", "text/html,application/xhtml+xml")
		r.Header.Set("User-Agent", "Mozilla/5.0")
	})

	assert.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "/login?rd=")
	assert.Contains(t, loc, "https%3A%2F%2Ftts.example.com%2Fspeak%3Fvoice%3Don")
}

func TestVerify_SessionCookieAllow(t *testing.T) {
	s, st := setupServer(t)
	createTestKey(t, st, "rachael-tts", "rachael", "tts")

	user := &store.User{
		ID:        "user-1",
		Username:  "rachael",
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.CreateUser(context.Background(), user))
	session := &store.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, st.CreateSession(context.Background(), session))

	rec := doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
		r.AddCookie(&http.Cookie{Name: config.DefaultSessionCookie, Value: "sess-1"})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tts", rec.Header().Get("X-VK-Service"))
}

func TestCreateKey_ReturnsSecretOnce(t *testing.T) {
	s, st := setupServer(t)

	body, _ := json.Marshal(map[string]any{
		"name":            "new-key",
		"user":            "rachael",
		"scopes":          []string{"tts", "stt"},
		"expires_in_days": 30,
	})
	req := httptest.NewRequest(http.MethodPost, "/keys", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	secret, _ := resp["api_key"].(string)
	require.NotEmpty(t, secret)
	assert.NotNil(t, resp["expires_at"])

	// The minted secret verifies
	key, err := st.GetKeyBySecret(context.Background(), secret)
	require.NoError(t, err)
	assert.Equal(t, "new-key", key.Name)
	assert.True(t, key.Active)

	// Listing never exposes it again
	listRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, "/keys", nil))
	require.Equal(t, http.StatusOK, listRec.Code)
	assert.NotContains(t, listRec.Body.String(), secret)
}

func TestCreateKey_DuplicateName(t *testing.T) {
	s, st := setupServer(t)
	createTestKey(t, st, "taken", "rachael", "tts")

	body, _ := json.Marshal(map[string]any{"name": "taken", "user": "deckard"})
	req := httptest.NewRequest(http.MethodPost, "/keys", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestCreateKey_MissingFields(t *testing.T) {
	s, _ := setupServer(t)

	body, _ := json.Marshal(map[string]any{"name": "no-user"})
	req := httptest.NewRequest(http.MethodPost, "/keys", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListKeys_NewestFirst(t *testing.T) {
	s, st := setupServer(t)
	for i := 0; i < 3; i++ {
		secret, err := store.NewSecret()
		require.NoError(t, err)
		key := &store.Key{
			ID:        fmt.Sprintf("key-%d", i),
			Name:      fmt.Sprintf("key-%d", i),
			Secret:    secret,
			Principal: "rachael",
			Scopes:    store.NewScopeSet("tts"),
			Active:    true,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, st.CreateKey(context.Background(), key))
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/keys", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Keys []keyInfo `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Keys, 3)
	assert.Equal(t, "key-2", resp.Keys[0].Name)
	assert.Equal(t, "key-0", resp.Keys[2].Name)
}

func TestDeleteKey(t *testing.T) {
	s, st := setupServer(t)
	key, _ := createTestKey(t, st, "doomed", "rachael", "tts")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/keys/"+key.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := st.GetKey(context.Background(), key.ID)
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestDeleteKey_NotFound(t *testing.T) {
	s, _ := setupServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/keys/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToggleKey(t *testing.T) {
	s, st := setupServer(t)
	key, _ := createTestKey(t, st, "flippable", "rachael", "tts")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/keys/"+key.ID+"/toggle", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := st.GetKey(context.Background(), key.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// Toggle back
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/keys/"+key.ID+"/toggle", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err = st.GetKey(context.Background(), key.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestToggleKey_NotFound(t *testing.T) {
	s, _ := setupServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/keys/nope/toggle", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := setupServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "operational", resp["status"])
	assert.Equal(t, "positive", resp["test"])
}

func TestRootDescriptor(t *testing.T) {
	s, _ := setupServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Voight-Kampff")
}

func TestMetricsEndpoint(t *testing.T) {
	s, st := setupServer(t)
	_, secret := createTestKey(t, st, "tts-key", "rachael", "tts")

	doVerify(s, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "tts.example.com")
		r.Header.Set("Authorization", "Bearer "+secret)
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vk_verify_total")
}
