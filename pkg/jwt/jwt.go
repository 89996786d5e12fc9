package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/aisentinel/session-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidSigningMethod = errors.New("unexpected signing method")
	ErrInvalidToken         = errors.New("invalid token")
	ErrWrongTokenType       = errors.New("wrong token type")
)

// TokenService signs and validates email verification links.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	expiry     time.Duration
	issuer     string
	now        func() time.Time
}

func NewTokenService(privateKeyPEM, publicKeyPEM []byte, expiry time.Duration, issuer string) (*TokenService, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		expiry:     expiry,
		issuer:     issuer,
		now:        time.Now,
	}, nil
}

// GenerateVerificationToken returns a signed token binding email.
func (s *TokenService) GenerateVerificationToken(email string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.expiry)

	claims := domain.VerificationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Email:     email,
		TokenType: domain.TokenTypeVerification,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign verification token: %w", err)
	}

	return signed, exp, nil
}

// ValidateVerificationToken checks signature, issuer, expiry and type.
func (s *TokenService) ValidateVerificationToken(tokenString string) (*domain.VerificationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &domain.VerificationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return s.publicKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*domain.VerificationClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != domain.TokenTypeVerification {
		return nil, ErrWrongTokenType
	}
	if claims.Email == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
