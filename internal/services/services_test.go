package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
)

// memoryStore is an in-memory [ConnectionStore].
type memoryStore struct {
	mu      sync.Mutex
	conns   map[string]models.ServiceConnection
	updates int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{conns: make(map[string]models.ServiceConnection)}
}

func storeKey(userID string, service models.ProviderType) string {
	return string(service) + ":" + userID
}

func (m *memoryStore) Get(userID string, service models.ProviderType) (*models.ServiceConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[storeKey(userID, service)]
	if !ok {
		return nil, shared.ErrNotConnected
	}
	return &conn, nil
}

func (m *memoryStore) Upsert(conn *models.ServiceConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := storeKey(conn.UserID, conn.Service)
	if prev, ok := m.conns[key]; ok && conn.RefreshToken == "" {
		conn.RefreshToken = prev.RefreshToken
	}
	m.conns[key] = *conn
	return nil
}

func (m *memoryStore) UpdateTokens(conn *models.ServiceConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := storeKey(conn.UserID, conn.Service)
	if _, ok := m.conns[key]; !ok {
		return shared.ErrNotConnected
	}
	m.conns[key] = *conn
	m.updates++
	return nil
}

func (m *memoryStore) Delete(userID string, service models.ProviderType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, storeKey(userID, service))
	return nil
}

func (m *memoryStore) put(userID string, service models.ProviderType, access, refresh string, expires *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[storeKey(userID, service)] = models.ServiceConnection{
		UserID:       userID,
		Service:      service,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
	}
}

func testLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

func testDeps(store ConnectionStore) Deps {
	return Deps{Connections: store, HTTPClient: http.DefaultClient, Logger: testLogger()}
}

func testCredentials() shared.OAuthCredentials {
	return shared.OAuthCredentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://127.0.0.1:3000/callback",
	}
}

// tokenServer answers the authorization_code and refresh_token grants.
// Refresh responses omit the refresh token, as Spotify and Google usually do.
type tokenServer struct {
	*httptest.Server
	mu        sync.Mutex
	grants    []string
	fail      bool
	basicAuth bool
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ts.mu.Lock()
		grant := r.PostForm.Get("grant_type")
		ts.grants = append(ts.grants, grant)
		if id, secret, ok := r.BasicAuth(); ok && id == "client-id" && secret == "client-secret" {
			ts.basicAuth = true
		}
		fail := ts.fail
		ts.mu.Unlock()

		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}

		body := map[string]any{"token_type": "Bearer", "expires_in": 3600}
		switch grant {
		case "authorization_code":
			body["access_token"] = "access-" + r.PostForm.Get("code")
			body["refresh_token"] = "refresh-1"
		case "refresh_token":
			body["access_token"] = "access-refreshed"
		default:
			http.Error(w, "unsupported grant", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{AuthURL: ts.URL + "/authorize", TokenURL: ts.URL + "/token"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ptr[T any](v T) *T { return &v }
