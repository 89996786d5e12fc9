package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/internal/events"
)

var (
	// ErrActiveAccount refuses removal of the account currently signed in.
	ErrActiveAccount = errors.New("cannot remove the active account")
	// ErrAccountNotFound is returned when switching to an unknown email.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDemoMode short-circuits mutations for demo identities. Callers show
	// an explanation instead of an error.
	ErrDemoMode = errors.New("demo mode: changes are disabled")
	// ErrWatchUnsupported is returned when the storage cannot report changes.
	ErrWatchUnsupported = errors.New("storage does not support watching")
)

// Watcher is implemented by storages that report external changes.
type Watcher interface {
	Watch(ctx context.Context) (<-chan StorageEvent, error)
}

type Options struct {
	BaseURL string
	// RealtimeURL is the WebSocket endpoint; derived from BaseURL when empty.
	RealtimeURL string
	Storage     Storage
	HTTPClient  *http.Client
	CookieName  string
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Manager is the single owner of session state. Consumers go through it and
// never touch cookies or storage directly.
type Manager struct {
	api         *Client
	accounts    *AccountStore
	backups     *BackupStore
	activator   *Activator
	identity    *IdentityConsumer
	storage     Storage
	realtimeURL string
	httpClient  *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

func NewManager(opts Options) (*Manager, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}
	if opts.Storage == nil {
		opts.Storage = NewMemoryStorage()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.RealtimeURL == "" {
		opts.RealtimeURL = realtimeURLFor(base)
	}

	backups := NewBackupStore(opts.Storage, opts.Logger)
	activator := NewActivator(ActivatorConfig{
		Jar:        NewStorageJar(opts.Storage, opts.Logger),
		Backups:    backups,
		Host:       base.Host,
		CookieName: opts.CookieName,
		Logger:     opts.Logger,
	})
	api := NewClient(opts.BaseURL, opts.HTTPClient, activator.CookieName(), opts.Timeout)

	return &Manager{
		api:         api,
		accounts:    NewAccountStore(opts.Storage, opts.Logger),
		backups:     backups,
		activator:   activator,
		identity:    NewIdentityConsumer(api, activator, opts.Logger),
		storage:     opts.Storage,
		realtimeURL: opts.RealtimeURL,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		now:         time.Now,
	}, nil
}

func realtimeURLFor(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String()
}

func (m *Manager) Accounts() *AccountStore { return m.accounts }
func (m *Manager) Activator() *Activator { return m.activator }
func (m *Manager) Identity() *IdentityConsumer { return m.identity }
func (m *Manager) Client() *Client { return m.api }
func (m *Manager) State() AuthState { return m.identity.State() }
func (m *Manager) Refresh(ctx context.Context) (AuthState, error) {
	return m.identity.Refresh(ctx)
}

// NavigationResult describes what a navigation did.
type NavigationResult struct {
	// URL is the address to show after consumed parameters were stripped.
	URL       *url.URL
	Candidate Candidate
	Matched   bool
	State     AuthState
	// Saved is set when the navigation stored or updated an account.
	Saved *SavedAccount
}

// HandleNavigation evaluates the credential rules once for rawURL, applies
// the winning candidate and refreshes the identity exactly once. The
// returned URL is always scrubbed, even when applying the candidate failed,
// so reloading it cannot re-trigger activation.
func (m *Manager) HandleNavigation(ctx context.Context, rawURL string) (*NavigationResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid navigation URL: %w", err)
	}

	cand, matched := Extract(u, m.activator.CookieToken())
	res := &NavigationResult{URL: Scrub(u), Candidate: cand, Matched: matched}

	var applyErr error
	if matched {
		m.logger.Debug("session candidate",
			zap.String("source", cand.Source.String()),
			zap.Bool("enrich", cand.Enrich))
		applyErr = m.apply(ctx, cand)
	}

	state, err := m.identity.Refresh(ctx)
	res.State = state
	if err != nil {
		return res, errors.Join(applyErr, fmt.Errorf("failed to refresh identity: %w", err))
	}

	if matched && state.IsAuthenticated {
		res.Saved = m.remember(cand, state)
	}
	return res, applyErr
}

func (m *Manager) apply(ctx context.Context, cand Candidate) error {
	switch cand.Action {
	case ActionSignOut:
		return m.signOut(ctx)
	case ActionUse:
		m.activate(cand.Token)
	case ActionActivate:
		m.activate(cand.Token)
		if err := m.api.ActivateSession(ctx, cand.Token); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				m.activator.Clear()
			}
			return fmt.Errorf("failed to activate session: %w", err)
		}
	case ActionRestoreBackup:
		backup, ok := m.backups.Load()
		if !ok {
			m.logger.Info("direct session requested but no backup is stored")
			return nil
		}
		m.activator.Activate(backup.SessionToken)
	}
	return nil
}

func (m *Manager) activate(token string) {
	m.activator.Activate(token)
	m.backups.Save(Backup{SessionToken: token, CreatedAt: m.now()})
}

// remember keeps the saved accounts in step with a confirmed identity.
func (m *Manager) remember(cand Candidate, state AuthState) *SavedAccount {
	token, _ := m.activator.Token()
	if token == "" {
		return nil
	}

	if existing, ok := m.accounts.FindByToken(token); ok && !cand.Enrich && !cand.Hints.SaveAccount {
		m.accounts.UpdateLastUsed(existing.Email)
		return nil
	}
	if !cand.Enrich && !cand.Hints.SaveAccount {
		return nil
	}

	account := accountFrom(state, token, m.now())
	if account.CompanyName == "" {
		account.CompanyName = cand.Hints.CompanyName
	}
	if account.CompanyID == nil {
		account.CompanyID = cand.Hints.CompanyID
	}
	if err := m.accounts.Save(account); err != nil {
		m.logger.Warn("failed to save account", zap.Error(err))
		return nil
	}
	return &account
}

func accountFrom(state AuthState, token string, now time.Time) SavedAccount {
	u := state.User
	return SavedAccount{
		Email:        normalizeEmail(u.Email),
		SessionToken: token,
		Role:         u.Role,
		RoleLevel:    u.RoleLevel,
		CompanyID:    u.CompanyID,
		CompanyName:  u.CompanyName,
		LastUsed:     now,
	}
}

// SwitchAccount makes a saved account the active one. The generation bump
// discards anything fetched for the previous account.
func (m *Manager) SwitchAccount(ctx context.Context, email string) (AuthState, error) {
	account, ok := m.accounts.Get(email)
	if !ok {
		return m.identity.State(), fmt.Errorf("%w: %s", ErrAccountNotFound, email)
	}

	m.activate(account.SessionToken)
	m.accounts.UpdateLastUsed(account.Email)

	state, err := m.identity.Refresh(ctx)
	if err != nil {
		return state, fmt.Errorf("failed to refresh identity: %w", err)
	}
	if !state.IsAuthenticated {
		return state, fmt.Errorf("%w: saved session for %s is no longer valid", ErrUnauthorized, account.Email)
	}
	return state, nil
}

// RemoveAccount forgets a saved account. The account of the active session
// cannot be removed.
func (m *Manager) RemoveAccount(email string) error {
	key := normalizeEmail(email)

	if state := m.identity.State(); state.User != nil && normalizeEmail(state.User.Email) == key {
		return ErrActiveAccount
	}
	if account, ok := m.accounts.Get(key); ok {
		if token, _ := m.activator.Token(); token != "" && token == account.SessionToken {
			return ErrActiveAccount
		}
	}

	m.accounts.Remove(key)
	return nil
}

// Login signs in with a password, activates the new session and remembers
// the account.
func (m *Manager) Login(ctx context.Context, email, password string) (AuthState, error) {
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		return m.identity.State(), fmt.Errorf("failed to sign in: %w", err)
	}

	m.activate(res.SessionToken)
	state, err := m.identity.Refresh(ctx)
	if err != nil {
		return state, fmt.Errorf("failed to refresh identity: %w", err)
	}
	if state.IsAuthenticated {
		if err := m.accounts.Save(accountFrom(state, res.SessionToken, m.now())); err != nil {
			m.logger.Warn("failed to save account", zap.Error(err))
		}
	}
	return state, nil
}

// SignOut revokes the session server-side and clears it locally. Local
// state is cleared even when the server call fails.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.signOut(ctx)
}

func (m *Manager) signOut(ctx context.Context) error {
	token, _ := m.activator.Token()

	var err error
	if token != "" {
		if err = m.api.Logout(ctx, token); err != nil {
			m.logger.Warn("server logout failed", zap.Error(err))
			err = fmt.Errorf("failed to logout: %w", err)
		}
	}
	m.identity.signedOut(m.activator.Clear())
	return err
}

// EnsureSession provisions a server session when no credential exists.
func (m *Manager) EnsureSession(ctx context.Context) (AuthState, error) {
	if token, _ := m.activator.Token(); token == "" {
		created, err := m.api.CreateSession(ctx)
		if err != nil {
			return m.identity.State(), err
		}
		m.activate(created.SessionToken)
	}
	return m.identity.Refresh(ctx)
}

// GuardMutation returns ErrDemoMode when the active identity is read-only.
func (m *Manager) GuardMutation() error {
	if IsDemo(m.identity.State()) {
		return ErrDemoMode
	}
	return nil
}

// Watch follows the server's session events and refreshes the identity
// whenever a session of the current user is activated or revoked. onEvent
// may be nil. Watch returns when ctx ends or the connection drops.
func (m *Manager) Watch(ctx context.Context, onEvent func(events.Event, AuthState)) error {
	token, _ := m.activator.Token()
	if token == "" {
		return ErrUnauthorized
	}

	u, err := url.Parse(m.realtimeURL)
	if err != nil {
		return fmt.Errorf("invalid realtime URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: m.httpClient})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", m.realtimeURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "closed")

	for {
		var evt events.Event
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("realtime connection lost: %w", err)
		}

		state := m.identity.State()
		switch evt.Type {
		case events.TypeSessionActivated, events.TypeSessionRevoked:
			if state, err = m.identity.Refresh(ctx); err != nil {
				m.logger.Warn("failed to refresh identity after event", zap.String("type", evt.Type), zap.Error(err))
			}
		}
		if onEvent != nil {
			onEvent(evt, state)
		}
	}
}

// WatchAccounts calls fn with the saved accounts every time another process
// changes them. It blocks until ctx ends.
func (m *Manager) WatchAccounts(ctx context.Context, fn func([]SavedAccount)) error {
	w, ok := m.storage.(Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	ch, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	for ev := range ch {
		if ev.Key == KeySavedAccounts {
			fn(m.accounts.ByLastUsed())
		}
	}
	return nil
}
