package session

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultCookieName = "sessionToken"
	CookieMaxAge      = 30 * 24 * time.Hour
)

// CookieJar holds the cookies of the service origin.
type CookieJar interface {
	Cookie(name string) (*http.Cookie, bool)
	SetCookie(c *http.Cookie)
	DeleteCookie(name string)
}

// StorageJar persists cookies as one JSON object in Storage. Expired
// cookies read as absent.
type StorageJar struct {
	mu      sync.Mutex
	storage Storage
	logger  *zap.Logger
	now     func() time.Time
}

func NewStorageJar(storage Storage, logger *zap.Logger) *StorageJar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageJar{storage: storage, logger: logger, now: time.Now}
}

func (j *StorageJar) load() map[string]*http.Cookie {
	cookies := map[string]*http.Cookie{}
	raw, ok, err := j.storage.Get(KeyCookies)
	if err != nil {
		j.logger.Warn("failed to read cookies", zap.Error(err))
		return cookies
	}
	if !ok {
		return cookies
	}
	if err := json.Unmarshal([]byte(raw), &cookies); err != nil {
		j.logger.Warn("ignoring corrupt cookie jar", zap.Error(err))
		return map[string]*http.Cookie{}
	}
	return cookies
}

func (j *StorageJar) store(cookies map[string]*http.Cookie) {
	raw, err := json.Marshal(cookies)
	if err != nil {
		j.logger.Error("failed to encode cookies", zap.Error(err))
		return
	}
	if err := j.storage.Set(KeyCookies, string(raw)); err != nil {
		j.logger.Error("failed to persist cookies", zap.Error(err))
	}
}

func (j *StorageJar) Cookie(name string) (*http.Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.load()[name]
	if !ok || c == nil || c.Value == "" {
		return nil, false
	}
	if !c.Expires.IsZero() && !j.now().Before(c.Expires) {
		return nil, false
	}
	return c, true
}

func (j *StorageJar) SetCookie(c *http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cookies := j.load()
	if c.MaxAge > 0 && c.Expires.IsZero() {
		c.Expires = j.now().Add(time.Duration(c.MaxAge) * time.Second)
	}
	cookies[c.Name] = c
	j.store(cookies)
}

func (j *StorageJar) DeleteCookie(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cookies := j.load()
	if _, ok := cookies[name]; !ok {
		return
	}
	delete(cookies, name)
	j.store(cookies)
}

// IsDevelopmentHost reports whether host gets relaxed cookie attributes.
func IsDevelopmentHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	switch {
	case host == "localhost", host == "127.0.0.1", host == "::1":
		return true
	case strings.HasSuffix(host, ".localhost"), strings.HasSuffix(host, ".local"), strings.HasSuffix(host, ".test"):
		return true
	}
	return false
}

// Activator owns the effective credential: the cookie, the header override
// set during this run, and the generation counter bumped on every change.
// Readers compare generations to discard results fetched for an older
// credential.
type Activator struct {
	mu         sync.Mutex
	jar        CookieJar
	backups    *BackupStore
	host       string
	cookieName string
	override   string
	generation uint64
	logger     *zap.Logger
}

type ActivatorConfig struct {
	Jar        CookieJar
	Backups    *BackupStore
	Host       string
	CookieName string
	Logger     *zap.Logger
}

func NewActivator(cfg ActivatorConfig) *Activator {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Activator{
		jar:        cfg.Jar,
		backups:    cfg.Backups,
		host:       cfg.Host,
		cookieName: cfg.CookieName,
		logger:     cfg.Logger,
	}
}

func (a *Activator) CookieName() string {
	return a.cookieName
}

// SessionCookie builds the cookie written for token on the activator's host.
func (a *Activator) SessionCookie(token string) *http.Cookie {
	c := &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   true,
	}
	if IsDevelopmentHost(a.host) {
		c.Secure = false
	}
	return c
}

// Activate makes token the credential of every following request and
// returns the new generation. It does not contact the server.
func (a *Activator) Activate(token string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.jar.SetCookie(a.SessionCookie(token))
	a.override = token
	a.generation++

	a.logger.Debug("session activated", zap.Uint64("generation", a.generation))
	return a.generation
}

// Clear destroys the active session locally, backup blob included.
func (a *Activator) Clear() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clearLocked()
}

// ClearIf clears the session only while gen is still the current
// generation. It reports whether it cleared.
func (a *Activator) ClearIf(gen uint64) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		return a.generation, false
	}
	return a.clearLocked(), true
}

func (a *Activator) clearLocked() uint64 {
	a.jar.DeleteCookie(a.cookieName)
	a.override = ""
	if a.backups != nil {
		a.backups.Clear()
	}
	a.generation++

	a.logger.Debug("session cleared", zap.Uint64("generation", a.generation))
	return a.generation
}

func (a *Activator) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// CookieToken returns the value of the session cookie, if any.
func (a *Activator) CookieToken() string {
	if c, ok := a.jar.Cookie(a.cookieName); ok {
		return c.Value
	}
	return ""
}

// Token resolves the active credential: the override first, then the
// cookie, then the backup blob.
func (a *Activator) Token() (string, Source) {
	a.mu.Lock()
	override := a.override
	a.mu.Unlock()

	if override != "" {
		return override, SourceOverride
	}
	if token := a.CookieToken(); token != "" {
		return token, SourceCookie
	}
	if a.backups != nil {
		if b, ok := a.backups.Load(); ok {
			return b.SessionToken, SourceBackupStore
		}
	}
	return "", SourceNone
}
