package session

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtractPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		cookie string
		token  string
		source Source
		action Action
		found  bool
	}{
		{"auth token beats cookie", "/?auth_token=prod-X", "Y", "prod-X", SourceAuthParam, ActionUse, true},
		{"dashed auth token", "/?auth-token=prod-X", "", "prod-X", SourceAuthParam, ActionUse, true},
		{"auth token without prefix is ignored", "/?auth_token=X", "Y", "Y", SourceCookie, ActionKeep, true},
		{"auth token beats session token", "/?session_token=prod-session-S&auth_token=prod-A", "", "prod-A", SourceAuthParam, ActionUse, true},
		{"session token", "/?session_token=prod-session-S", "Y", "prod-session-S", SourceSessionParam, ActionActivate, true},
		{"short session param", "/?session=prod-session-S", "", "prod-session-S", SourceSessionParam, ActionActivate, true},
		{"session token without prefix is ignored", "/?session_token=abc", "", "", SourceNone, ActionKeep, false},
		{"backup session", "/?backup-session=prod-session-B&direct-session=true", "Y", "prod-session-B", SourceBackupParam, ActionUse, true},
		{"direct session", "/?direct-session=true", "Y", "", SourceBackupStore, ActionRestoreBackup, true},
		{"direct session must be true", "/?direct-session=1", "Y", "Y", SourceCookie, ActionKeep, true},
		{"cookie only", "/dashboard", "Y", "Y", SourceCookie, ActionKeep, true},
		{"logout wins", "/?logout=true&auth_token=prod-X", "Y", "", SourceLogout, ActionSignOut, true},
		{"nothing", "/", "", "", SourceNone, ActionKeep, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := Extract(mustURL(t, tt.url), tt.cookie)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.token, c.Token)
			assert.Equal(t, tt.source, c.Source)
			assert.Equal(t, tt.action, c.Action)
		})
	}
}

func TestExtractVerifiedEmailRequestsEnrichment(t *testing.T) {
	u := mustURL(t, "/?session_token=prod-session-S&verified_email=Ed@Example.com&role_level=998&company_id=7&company_name=Acme&verified=true&save-account=true")

	c, ok := Extract(u, "")
	require.True(t, ok)
	assert.True(t, c.Enrich)
	assert.Equal(t, "ed@example.com", c.Hints.Email)
	require.NotNil(t, c.Hints.RoleLevel)
	assert.Equal(t, 998, *c.Hints.RoleLevel)
	require.NotNil(t, c.Hints.CompanyID)
	assert.Equal(t, int64(7), *c.Hints.CompanyID)
	assert.Equal(t, "Acme", c.Hints.CompanyName)
	assert.True(t, c.Hints.Verified)
	assert.True(t, c.Hints.SaveAccount)

	plain, _ := Extract(mustURL(t, "/?session_token=prod-session-S"), "")
	assert.False(t, plain.Enrich)
}

func TestScrubRemovesConsumedParams(t *testing.T) {
	u := mustURL(t, "/chat?tab=models&auth_token=prod-X&session=prod-session-S&verified_email=a@x.com&logout=false#top")

	scrubbed := Scrub(u)
	assert.Equal(t, "/chat?tab=models#top", scrubbed.String())
	assert.False(t, HasConsumedParams(scrubbed))

	for _, p := range ConsumedParams {
		assert.False(t, scrubbed.Query().Has(p), p)
	}

	// Scrubbing twice changes nothing and leaves nothing to act on.
	assert.Equal(t, scrubbed.String(), Scrub(scrubbed).String())
	_, ok := Extract(scrubbed, "")
	assert.False(t, ok)

	// The input is untouched.
	assert.True(t, HasConsumedParams(u))
}

func TestScrubLeavesBarePath(t *testing.T) {
	scrubbed := Scrub(mustURL(t, "/?auth_token=prod-abc123"))
	assert.Equal(t, "/", scrubbed.String())
	assert.Empty(t, scrubbed.RawQuery)
}

func TestScrubKeepsRemainingQueryVerbatim(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "clean url keeps order", url: "/chat?tab=models&a=1", want: "/chat?tab=models&a=1"},
		{name: "bare flag survives", url: "/x?flag", want: "/x?flag"},
		{name: "encoding untouched", url: "/s?q=a%20b&z=%2F", want: "/s?q=a%20b&z=%2F"},
		{name: "order kept around consumed", url: "/chat?session_token=prod-session-ab&tab=models&a=1", want: "/chat?tab=models&a=1"},
		{name: "flag kept next to consumed", url: "/x?flag&auth_token=prod-1&b=2", want: "/x?flag&b=2"},
		{name: "escaped consumed key", url: "/x?auth%5Ftoken=prod-1&b=2", want: "/x?b=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scrub(mustURL(t, tt.url)).String())
		})
	}
}
