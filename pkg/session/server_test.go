package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/internal/events"
)

// fakeServer answers the identity endpoints from an in-memory token table.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	users     map[string]*domain.IdentityUser
	passwords map[string]string
	activated []string
	loggedOut []string
	pushed    []events.Event

	meCalls atomic.Int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		users:     map[string]*domain.IdentityUser{},
		passwords: map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/me", f.me)
	mux.HandleFunc("/api/auth/activate-session", f.activate)
	mux.HandleFunc("/api/auth/create-session", f.create)
	mux.HandleFunc("/api/auth/login", f.login)
	mux.HandleFunc("/api/auth/logout", f.logout)
	mux.HandleFunc("/ws", f.ws)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) addUser(token, email string, level int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[token] = &domain.IdentityUser{
		ID:        "id-" + email,
		Email:     email,
		Role:      domain.RoleLabel(level),
		RoleLevel: level,
	}
}

func (f *fakeServer) revoke(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, token)
}

func (f *fakeServer) lookup(token string) *domain.IdentityUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[token]
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeServer) me(w http.ResponseWriter, r *http.Request) {
	f.meCalls.Add(1)
	token := bearer(r)
	identity := domain.Identity{DatabaseConnected: true}
	if user := f.lookup(token); user != nil {
		identity.Authenticated = true
		identity.SessionValid = true
		identity.SessionExists = true
		identity.User = user
	}
	writeJSON(w, http.StatusOK, identity)
}

func (f *fakeServer) activate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionToken string `json:"sessionToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.activated = append(f.activated, body.SessionToken)
	f.mu.Unlock()

	if f.lookup(body.SessionToken) == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Session activated"})
}

func (f *fakeServer) create(w http.ResponseWriter, r *http.Request) {
	token := "prod-session-created"
	f.addUser(token, "demo@aisentinel.app", domain.RoleLevelDemo)
	writeJSON(w, http.StatusCreated, CreatedSession{
		Success:           true,
		SessionID:         "s-1",
		SessionToken:      token,
		UserID:            "id-demo",
		Email:             "demo@aisentinel.app",
		DatabaseConnected: true,
	})
}

func (f *fakeServer) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	want, ok := f.passwords[body.Email]
	f.mu.Unlock()
	if !ok || want != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	token := "prod-session-login-" + body.Email
	f.addUser(token, body.Email, domain.RoleLevelUser)
	writeJSON(w, http.StatusOK, LoginResult{Success: true, SessionToken: token, Email: body.Email})
}

func (f *fakeServer) logout(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	f.mu.Lock()
	f.loggedOut = append(f.loggedOut, token)
	f.mu.Unlock()
	f.revoke(token)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (f *fakeServer) ws(w http.ResponseWriter, r *http.Request) {
	if f.lookup(r.URL.Query().Get("token")) == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	pushed := append([]events.Event(nil), f.pushed...)
	f.mu.Unlock()
	for _, evt := range pushed {
		if err := wsjson.Write(r.Context(), conn, evt); err != nil {
			return
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func (f *fakeServer) activations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.activated...)
}

func newTestManager(t *testing.T, srv *fakeServer, storage Storage) *Manager {
	t.Helper()
	if storage == nil {
		storage = NewMemoryStorage()
	}
	m, err := NewManager(Options{BaseURL: srv.URL, Storage: storage})
	require.NoError(t, err)
	return m
}
