package blacklist

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aisentinel/session-service/pkg/cache"
)

// SessionBlacklist records revoked session tokens (by hash) so that a token
// copied into another tab or device stops working before its row expires.
type SessionBlacklist struct {
	cache cache.Cache
}

func NewSessionBlacklist(c cache.Cache) *SessionBlacklist {
	return &SessionBlacklist{cache: c}
}

func tokenKey(tokenHash string) string {
	return fmt.Sprintf("blacklist:session:%s", tokenHash)
}

func userKey(userID string) string {
	return fmt.Sprintf("blacklist:user:%s", userID)
}

// Revoke blacklists tokenHash until expiresAt. Already expired sessions are
// ignored.
func (b *SessionBlacklist) Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := b.cache.Set(ctx, tokenKey(tokenHash), "1", ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (b *SessionBlacklist) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	ok, err := b.cache.Exists(ctx, tokenKey(tokenHash))
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return ok, nil
}

// RevokeUser invalidates every session of userID created before now.
func (b *SessionBlacklist) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := b.cache.Set(ctx, userKey(userID), stamp, ttl); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

// IsUserRevoked reports whether a session created at createdAt predates the
// user's last revocation.
func (b *SessionBlacklist) IsUserRevoked(ctx context.Context, userID string, createdAt time.Time) (bool, error) {
	raw, err := b.cache.Get(ctx, userKey(userID))
	if err == cache.ErrMiss {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user blacklist: %w", err)
	}

	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	return createdAt.Before(time.Unix(0, nanos)), nil
}
