package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/internal/config"
	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/internal/events"
	"github.com/aisentinel/session-service/internal/handler/middleware"
	"github.com/aisentinel/session-service/internal/repository/memory"
	"github.com/aisentinel/session-service/internal/service"
	"github.com/aisentinel/session-service/pkg/blacklist"
	"github.com/aisentinel/session-service/pkg/cache"
	"github.com/aisentinel/session-service/pkg/email"
	"github.com/aisentinel/session-service/pkg/hash"
	"github.com/aisentinel/session-service/pkg/jwt"
	"github.com/aisentinel/session-service/pkg/validator"
)

type testApp struct {
	app    *fiber.App
	svc    *service.AuthService
	users  *memory.UserRepo
	hasher *hash.PasswordHasher
	tokens *jwt.TokenService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	tokens, err := jwt.NewTokenService(priv, pub, time.Hour, "aisentinel")
	require.NoError(t, err)

	cfg := &config.Config{
		Server:  config.ServerConfig{Environment: "production", PublicURL: "https://app.aisentinel.test"},
		Session: config.SessionConfig{CookieName: "sessionToken", TTL: time.Hour, IdentityCacheTTL: time.Minute},
	}
	logger := zap.NewNop()
	c := cache.NewMemoryCache()
	hub := events.NewHub()

	ta := &testApp{
		users:  memory.NewUserRepo(),
		hasher: hash.NewPasswordHasher(hash.Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}),
		tokens: tokens,
	}
	ta.svc = service.NewAuthService(service.Dependencies{
		Users:        ta.users,
		Companies:    memory.NewCompanyRepo(),
		Sessions:     memory.NewSessionRepo(),
		Blacklist:    blacklist.NewSessionBlacklist(c),
		Cache:        c,
		TokenService: tokens,
		EmailService: email.NewLogEmailService(logger),
		Hasher:       ta.hasher,
		Hub:          hub,
		Config:       cfg,
		Logger:       logger,
	})

	ta.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	ta.app.Use(middleware.RecoveryMiddleware(logger))
	SetupRoutes(
		ta.app,
		NewAuthHandler(ta.svc, validator.NewValidator(), cfg, logger),
		NewSessionHandler(ta.svc, cfg, logger),
		NewAdminHandler(ta.svc, hub, logger),
		NewHealthHandler(nil, c),
		middleware.SessionAuth(ta.svc, cfg.Session.CookieName, logger),
		middleware.RequireAdmin(),
		middleware.RejectDemo(),
	)
	return ta
}

func (ta *testApp) addUser(t *testing.T, address, password string, level int) {
	t.Helper()
	encoded, err := ta.hasher.Hash(password)
	require.NoError(t, err)
	require.NoError(t, ta.users.Create(context.Background(), &domain.User{
		ID:           uuid.New(),
		Email:        address,
		PasswordHash: &encoded,
		Role:         domain.RoleLabel(level),
		RoleLevel:    level,
	}))
}

func (ta *testApp) do(t *testing.T, method, target, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(middleware.SessionTokenHeader, token)
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func (ta *testApp) login(t *testing.T, address, password string) string {
	t.Helper()
	resp, body := ta.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": address, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["sessionToken"].(string)
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "sessionToken" {
			return c
		}
	}
	return nil
}

func TestMeWithoutCredential(t *testing.T) {
	ta := newTestApp(t)

	resp, body := ta.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, false, body["sessionExists"])
	assert.Nil(t, body["user"])
}

func TestCreateSessionThenMe(t *testing.T) {
	ta := newTestApp(t)

	resp, body := ta.do(t, http.MethodPost, "/api/auth/create-session", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	token := body["sessionToken"].(string)
	assert.True(t, strings.HasPrefix(token, domain.SessionTokenPrefix))
	assert.Equal(t, service.DemoEmail, body["email"])

	c := sessionCookie(resp)
	require.NotNil(t, c)
	assert.Equal(t, token, c.Value)
	assert.True(t, c.Secure)
	assert.False(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	resp, body = ta.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["authenticated"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, float64(domain.RoleLevelDemo), user["roleLevel"])
}

func TestMeAcceptsBearerAndCookie(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, "a@x.com", "password-123", domain.RoleLevelUser)
	token := ta.login(t, "a@x.com", "password-123")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	var identity domain.Identity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&identity))
	assert.True(t, identity.Authenticated)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "sessionToken", Value: token})
	resp, err = ta.app.Test(req, -1)
	require.NoError(t, err)
	identity = domain.Identity{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&identity))
	assert.True(t, identity.Authenticated)
	assert.Equal(t, "a@x.com", identity.User.Email)
}

func TestActivateSession(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, "a@x.com", "password-123", domain.RoleLevelUser)
	token := ta.login(t, "a@x.com", "password-123")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/activate-session", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := ta.do(t, http.MethodPost, "/api/auth/activate-session", "", map[string]string{"sessionToken": "prod-abc"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, _ = ta.do(t, http.MethodPost, "/api/auth/activate-session", "", map[string]string{"sessionToken": "prod-session-ffffffff"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = ta.do(t, http.MethodPost, "/api/auth/activate-session", "", map[string]string{"sessionToken": token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	c := sessionCookie(resp)
	require.NotNil(t, c)
	assert.Equal(t, token, c.Value)
}

func TestLoginRejectsBadInput(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, "a@x.com", "password-123", domain.RoleLevelUser)

	resp, _ := ta.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "not-an-email", "password": "password-123"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := ta.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, service.ErrInvalidCredentials.Error(), body["error"])
}

func TestAdminRoutesRequireRoleLevel(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, "user@x.com", "password-123", 997)
	ta.addUser(t, "admin@x.com", "password-123", domain.RoleLevelAdmin)

	resp, _ := ta.do(t, http.MethodGet, "/api/admin/overview", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := ta.do(t, http.MethodGet, "/api/admin/overview", ta.login(t, "user@x.com", "password-123"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, float64(domain.RoleLevelAdmin), body["required_role_level"])

	admin := ta.login(t, "admin@x.com", "password-123")
	resp, body = ta.do(t, http.MethodGet, "/api/admin/overview", admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, body["user"])

	resp, body = ta.do(t, http.MethodPost, "/api/admin/sessions/prune", admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["deleted"])
}

func TestDemoSessionCannotMutate(t *testing.T) {
	ta := newTestApp(t)

	_, body := ta.do(t, http.MethodPost, "/api/auth/create-session", "", nil)
	token := body["sessionToken"].(string)

	resp, _ := ta.do(t, http.MethodGet, "/api/auth/sessions/", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ta.do(t, http.MethodDelete, "/api/auth/sessions/", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, true, body["demo"])
}

func TestSessionsListAndRevokeAll(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, "a@x.com", "password-123", domain.RoleLevelUser)
	first := ta.login(t, "a@x.com", "password-123")
	second := ta.login(t, "a@x.com", "password-123")

	resp, body := ta.do(t, http.MethodGet, "/api/auth/sessions/", first, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])

	resp, _ = ta.do(t, http.MethodDelete, "/api/auth/sessions/", second, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = ta.do(t, http.MethodGet, "/api/auth/me", first, nil)
	assert.Equal(t, false, body["authenticated"])
}

func TestLogoutClearsCookie(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, "a@x.com", "password-123", domain.RoleLevelUser)
	token := ta.login(t, "a@x.com", "password-123")

	resp, _ := ta.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := sessionCookie(resp)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)

	_, body := ta.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, false, body["sessionValid"])
	assert.Equal(t, true, body["sessionExists"])
}

func TestVerifyRedirectsWithSessionParams(t *testing.T) {
	ta := newTestApp(t)

	resp, _ := ta.do(t, http.MethodGet, "/api/auth/verify?token=forged", "", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/?verified=false", resp.Header.Get("Location"))

	token, _, err := ta.tokens.GenerateVerificationToken("new@x.com")
	require.NoError(t, err)
	resp, _ = ta.do(t, http.MethodGet, "/api/auth/verify?token="+url.QueryEscape(token), "", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/", loc.Path)
	assert.Equal(t, "new@x.com", loc.Query().Get("verified_email"))
	assert.Equal(t, "true", loc.Query().Get("verified"))
	sessionToken := loc.Query().Get("session_token")
	assert.True(t, strings.HasPrefix(sessionToken, domain.SessionTokenPrefix))

	_, body := ta.do(t, http.MethodGet, "/api/auth/me", sessionToken, nil)
	assert.Equal(t, true, body["authenticated"])
}

func TestRequestVerification(t *testing.T) {
	ta := newTestApp(t)

	resp, _ := ta.do(t, http.MethodPost, "/api/auth/request-verification", "", map[string]string{"email": "bad"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/api/auth/request-verification", "", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	ta := newTestApp(t)

	resp, body := ta.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = ta.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "memory", checks["database"])
	assert.Equal(t, "ok", checks["cache"])
}
