package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionTokenPrefix marks opaque session tokens issued by this service.
const SessionTokenPrefix = "prod-session-"

type Session struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	TokenHash  string     `json:"-" db:"token_hash"`
	UserID     *uuid.UUID `json:"userId,omitempty" db:"user_id"`
	Email      string     `json:"email" db:"email"`
	UserAgent  string     `json:"userAgent,omitempty" db:"user_agent"`
	IPAddress  string     `json:"ipAddress,omitempty" db:"ip_address"`
	ExpiresAt  time.Time  `json:"expiresAt" db:"expires_at"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	LastSeenAt time.Time  `json:"lastSeenAt" db:"last_seen_at"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
