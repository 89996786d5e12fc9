package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aisentinel/session-service/internal/domain"
)

var ErrUnauthorized = errors.New("unauthorized")

const SessionTokenHeader = "X-Session-Token"

// APIError is returned for any non-2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// CreatedSession is the answer of POST /api/auth/create-session.
type CreatedSession struct {
	Success           bool   `json:"success"`
	SessionID         string `json:"sessionId"`
	SessionToken      string `json:"sessionToken"`
	UserID            string `json:"userId"`
	Email             string `json:"email"`
	DatabaseConnected bool   `json:"databaseConnected"`
}

// LoginResult is the answer of POST /api/auth/login.
type LoginResult struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"sessionToken"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	RoleLevel    int    `json:"roleLevel"`
	CompanyID    *int64 `json:"companyId,omitempty"`
	CompanyName  string `json:"companyName,omitempty"`
}

// Client calls the identity endpoints. Every request carries the session
// token as cookie, Bearer header and X-Session-Token together.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cookieName string
	timeout    time.Duration
}

func NewClient(baseURL string, httpClient *http.Client, cookieName string, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		cookieName: cookieName,
		timeout:    timeout,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Me fetches GET /api/auth/me.
func (c *Client) Me(ctx context.Context, token string) (*domain.Identity, error) {
	var identity domain.Identity
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", token, nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// ActivateSession asks the server to accept a URL-borne token.
func (c *Client) ActivateSession(ctx context.Context, token string) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	body := map[string]string{"sessionToken": token}
	if err := c.do(ctx, http.MethodPost, "/api/auth/activate-session", token, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &APIError{Status: http.StatusUnauthorized, Message: resp.Message}
	}
	return nil
}

func (c *Client) CreateSession(ctx context.Context) (*CreatedSession, error) {
	var resp CreatedSession
	if err := c.do(ctx, http.MethodPost, "/api/auth/create-session", "", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.SessionToken == "" {
		return nil, fmt.Errorf("failed to create session: server returned no token")
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var resp LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", token, nil, nil)
}

func (c *Client) RequestVerification(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/request-verification", "", map[string]string{"email": email}, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: token})
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(SessionTokenHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func errorMessage(raw []byte, fallback string) string {
	var payload struct {
		Error   interface{} `json:"error"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return fallback
}
