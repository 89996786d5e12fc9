package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Email         string     `json:"email" db:"email"`
	PasswordHash  *string    `json:"-" db:"password_hash"`
	FirstName     string     `json:"firstName" db:"first_name"`
	LastName      string     `json:"lastName" db:"last_name"`
	Role          string     `json:"role" db:"role"`
	RoleLevel     int        `json:"roleLevel" db:"role_level"`
	CompanyID     *int64     `json:"companyId,omitempty" db:"company_id"`
	EmailVerified bool       `json:"emailVerified" db:"email_verified"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" db:"updated_at"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
}

// IsDemo reports whether the user is restricted to read-only demo mode.
func (u *User) IsDemo() bool {
	return u.RoleLevel == RoleLevelDemo
}
