package session

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/aisentinel/session-service/internal/domain"
)

// Source tells where a candidate credential came from.
type Source int

const (
	SourceNone Source = iota
	SourceOverride
	SourceAuthParam
	SourceSessionParam
	SourceBackupParam
	SourceBackupStore
	SourceCookie
	SourceLogout
)

func (s Source) String() string {
	switch s {
	case SourceOverride:
		return "override"
	case SourceAuthParam:
		return "auth-param"
	case SourceSessionParam:
		return "session-param"
	case SourceBackupParam:
		return "backup-param"
	case SourceBackupStore:
		return "backup-store"
	case SourceCookie:
		return "cookie"
	case SourceLogout:
		return "logout"
	default:
		return "none"
	}
}

// Action is what the manager must do with a candidate.
type Action int

const (
	// ActionKeep leaves the current credential alone.
	ActionKeep Action = iota
	// ActionUse makes the token the effective credential.
	ActionUse
	// ActionActivate additionally asks the server to activate the token.
	ActionActivate
	// ActionRestoreBackup loads the token from the backup blob.
	ActionRestoreBackup
	// ActionSignOut destroys the active session.
	ActionSignOut
)

// AuthTokenPrefix is required on tokens passed through auth_token.
const AuthTokenPrefix = "prod-"

// Hints are the redirect parameters that describe the identity behind a
// URL-borne token.
type Hints struct {
	SaveAccount bool
	Email       string
	RoleLevel   *int
	CompanyName string
	CompanyID   *int64
	Verified    bool
}

// Candidate is the single credential chosen for a navigation.
type Candidate struct {
	Token  string
	Source Source
	Action Action
	// Enrich asks for the identity to be fetched and saved as an account.
	Enrich bool
	Hints  Hints
}

// ConsumedParams lists every query parameter stripped after a navigation.
var ConsumedParams = []string{
	"session_token", "session",
	"backup-session", "direct-session",
	"auth_token", "auth-token",
	"save-account",
	"verified_email", "email",
	"role_level", "company_name", "company_id",
	"verified", "logout",
}

type rule struct {
	name  string
	match func(q url.Values, cookieToken string) (Candidate, bool)
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{name: "logout", match: matchLogout},
	{name: "auth-token", match: matchAuthToken},
	{name: "session-token", match: matchSessionToken},
	{name: "backup-session", match: matchBackupSession},
	{name: "direct-session", match: matchDirectSession},
	{name: "cookie", match: matchCookie},
}

// Extract picks at most one credential from the URL and the cookie value.
func Extract(u *url.URL, cookieToken string) (Candidate, bool) {
	q := url.Values{}
	if u != nil {
		q = u.Query()
	}
	for _, r := range rules {
		if c, ok := r.match(q, cookieToken); ok {
			c.Hints = hintsFrom(q)
			return c, true
		}
	}
	return Candidate{}, false
}

// Scrub returns a copy of u without any consumed parameter. The remaining
// parameters keep their order and encoding, so scrubbing an already clean
// URL returns an equal URL.
func Scrub(u *url.URL) *url.URL {
	out := *u
	if !HasConsumedParams(u) {
		return &out
	}

	kept := make([]string, 0, strings.Count(u.RawQuery, "&")+1)
	for _, segment := range strings.Split(u.RawQuery, "&") {
		if segment == "" || isConsumedSegment(segment) {
			continue
		}
		kept = append(kept, segment)
	}
	out.RawQuery = strings.Join(kept, "&")
	out.ForceQuery = false
	return &out
}

func isConsumedSegment(segment string) bool {
	key, _, _ := strings.Cut(segment, "=")
	key, err := url.QueryUnescape(key)
	if err != nil {
		return false
	}
	return slices.Contains(ConsumedParams, key)
}

// HasConsumedParams reports whether Scrub would change u.
func HasConsumedParams(u *url.URL) bool {
	q := u.Query()
	for _, p := range ConsumedParams {
		if q.Has(p) {
			return true
		}
	}
	return false
}

func firstParam(q url.Values, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(q.Get(n)); v != "" {
			return v
		}
	}
	return ""
}

func matchLogout(q url.Values, _ string) (Candidate, bool) {
	if q.Get("logout") != "true" {
		return Candidate{}, false
	}
	return Candidate{Source: SourceLogout, Action: ActionSignOut}, true
}

func matchAuthToken(q url.Values, _ string) (Candidate, bool) {
	token := firstParam(q, "auth_token", "auth-token")
	if !strings.HasPrefix(token, AuthTokenPrefix) {
		return Candidate{}, false
	}
	return Candidate{Token: token, Source: SourceAuthParam, Action: ActionUse}, true
}

func matchSessionToken(q url.Values, _ string) (Candidate, bool) {
	token := firstParam(q, "session_token", "session")
	if !strings.HasPrefix(token, domain.SessionTokenPrefix) {
		return Candidate{}, false
	}
	return Candidate{
		Token:  token,
		Source: SourceSessionParam,
		Action: ActionActivate,
		Enrich: firstParam(q, "verified_email", "email") != "",
	}, true
}

func matchBackupSession(q url.Values, _ string) (Candidate, bool) {
	token := firstParam(q, "backup-session")
	if token == "" {
		return Candidate{}, false
	}
	return Candidate{Token: token, Source: SourceBackupParam, Action: ActionUse}, true
}

func matchDirectSession(q url.Values, _ string) (Candidate, bool) {
	if q.Get("direct-session") != "true" {
		return Candidate{}, false
	}
	return Candidate{Source: SourceBackupStore, Action: ActionRestoreBackup}, true
}

func matchCookie(_ url.Values, cookieToken string) (Candidate, bool) {
	if cookieToken == "" {
		return Candidate{}, false
	}
	return Candidate{Token: cookieToken, Source: SourceCookie, Action: ActionKeep}, true
}

func hintsFrom(q url.Values) Hints {
	h := Hints{
		SaveAccount: q.Get("save-account") == "true",
		Email:       normalizeEmail(firstParam(q, "verified_email", "email")),
		CompanyName: firstParam(q, "company_name"),
		Verified:    q.Get("verified") == "true",
	}
	if v, err := strconv.Atoi(q.Get("role_level")); err == nil {
		h.RoleLevel = &v
	}
	if v, err := strconv.ParseInt(q.Get("company_id"), 10, 64); err == nil {
		h.CompanyID = &v
	}
	return h
}
