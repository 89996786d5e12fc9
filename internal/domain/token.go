package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

const TokenTypeVerification = "email_verification"

// VerificationClaims are carried by the signed link sent to confirm an email.
type VerificationClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	TokenType string `json:"type"`
}

// Identity is the payload of GET /api/auth/me.
type Identity struct {
	Authenticated     bool          `json:"authenticated"`
	User              *IdentityUser `json:"user,omitempty"`
	SessionValid      bool          `json:"sessionValid"`
	SessionExists     bool          `json:"sessionExists"`
	DatabaseConnected bool          `json:"databaseConnected"`
}

type IdentityUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Role        string `json:"role"`
	RoleLevel   int    `json:"roleLevel"`
	CompanyID   *int64 `json:"companyId,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
}
