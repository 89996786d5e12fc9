package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aisentinel/session-service/internal/config"
	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/internal/events"
	"github.com/aisentinel/session-service/internal/repository"
	"github.com/aisentinel/session-service/pkg/blacklist"
	"github.com/aisentinel/session-service/pkg/cache"
	"github.com/aisentinel/session-service/pkg/email"
	"github.com/aisentinel/session-service/pkg/hash"
	"github.com/aisentinel/session-service/pkg/jwt"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Custom errors
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidSessionToken   = errors.New("invalid session token")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionRevoked        = errors.New("session has been revoked")
	ErrInvalidVerification   = errors.New("invalid or expired verification link")
	ErrVerificationDisabled  = errors.New("email verification is not configured")
	ErrDemoUserNotConfigured = errors.New("demo user is not available")
)

// DemoEmail identifies the read-only account bound to provisioned sessions.
const DemoEmail = "demo@aisentinel.app"

// SessionMeta describes the client a session is opened for.
type SessionMeta struct {
	UserAgent string
	IPAddress string
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type VerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ActivateRequest struct {
	SessionToken string `json:"sessionToken" validate:"required,session_token"`
}

// IssuedSession is returned whenever a new opaque token is minted. The token
// never leaves this struct in stored form.
type IssuedSession struct {
	Session *domain.Session
	Token   string
	User    *domain.User
	Company *domain.Company
}

type AuthService struct {
	userRepo     repository.UserRepository
	companyRepo  repository.CompanyRepository
	sessionRepo  repository.SessionRepository
	blacklist    *blacklist.SessionBlacklist
	cache        cache.Cache
	tokenService *jwt.TokenService
	emailService email.EmailService
	hasher       *hash.PasswordHasher
	hub          *events.Hub
	cfg          *config.Config
	logger       *zap.Logger

	databaseConnected bool
}

type Dependencies struct {
	Users             repository.UserRepository
	Companies         repository.CompanyRepository
	Sessions          repository.SessionRepository
	Blacklist         *blacklist.SessionBlacklist
	Cache             cache.Cache
	TokenService      *jwt.TokenService
	EmailService      email.EmailService
	Hasher            *hash.PasswordHasher
	Hub               *events.Hub
	Config            *config.Config
	Logger            *zap.Logger
	DatabaseConnected bool
}

func NewAuthService(deps Dependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := deps.Hub
	if hub == nil {
		hub = events.NewHub()
	}
	return &AuthService{
		userRepo:          deps.Users,
		companyRepo:       deps.Companies,
		sessionRepo:       deps.Sessions,
		blacklist:         deps.Blacklist,
		cache:             deps.Cache,
		tokenService:      deps.TokenService,
		emailService:      deps.EmailService,
		hasher:            deps.Hasher,
		hub:               hub,
		cfg:               deps.Config,
		logger:            logger,
		databaseConnected: deps.DatabaseConnected,
	}
}

func (s *AuthService) DatabaseConnected() bool {
	return s.databaseConnected
}

// EnsureDemoUser seeds the read-only account used by CreateSession.
func (s *AuthService) EnsureDemoUser(ctx context.Context) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, DemoEmail)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	user = &domain.User{
		ID:            uuid.New(),
		Email:         DemoEmail,
		FirstName:     "Demo",
		Role:          domain.RoleLabel(domain.RoleLevelDemo),
		RoleLevel:     domain.RoleLevelDemo,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateSession provisions a fresh session for a client that has none. It
// is bound to the demo account, so the client lands in read-only mode.
func (s *AuthService) CreateSession(ctx context.Context, meta SessionMeta) (*IssuedSession, error) {
	user, err := s.EnsureDemoUser(ctx)
	if err != nil {
		s.logger.Error("failed to load demo user", zap.Error(err))
		return nil, ErrDemoUserNotConfigured
	}
	return s.issueSession(ctx, user, meta)
}

// Login verifies a password and opens a session for the user.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, meta SessionMeta) (*IssuedSession, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(req.Password, *user.PasswordHash)
	if err != nil || !valid {
		return nil, ErrInvalidCredentials
	}

	issued, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	if s.emailService != nil {
		if err := s.emailService.SendSignInNotice(ctx, user.Email, meta.UserAgent); err != nil {
			s.logger.Warn("failed to send sign-in notice", zap.String("email", user.Email), zap.Error(err))
		}
	}

	return issued, nil
}

// ActivateSession confirms a token handed over in a URL and records it as
// in use. The caller sets the cookie.
func (s *AuthService) ActivateSession(ctx context.Context, token string) (*domain.Session, error) {
	if !strings.HasPrefix(token, domain.SessionTokenPrefix) {
		return nil, ErrInvalidSessionToken
	}

	session, err := s.lookupSession(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.Touch(ctx, session.ID); err != nil {
		s.logger.Warn("failed to touch session", zap.String("session_id", session.ID.String()), zap.Error(err))
	}
	s.invalidateIdentity(ctx, session.TokenHash)

	s.publish(events.TypeSessionActivated, session)
	return session, nil
}

// Logout revokes the session behind token. Unknown tokens are not an error:
// the client clears its cookie either way.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	tokenHash := hash.HashToken(token)

	session, err := s.sessionRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to logout: %w", err)
	}

	if session != nil {
		if err := s.blacklist.Revoke(ctx, tokenHash, session.ExpiresAt); err != nil {
			s.logger.Warn("failed to blacklist session", zap.Error(err))
		}
	}
	if err := s.sessionRepo.DeleteByTokenHash(ctx, tokenHash); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to logout: %w", err)
	}
	s.invalidateIdentity(ctx, tokenHash)

	if session != nil {
		s.publish(events.TypeSessionRevoked, session)
	}
	return nil
}

// ListSessions returns the live sessions of the token's user.
func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	return s.sessionRepo.GetByUserID(ctx, userID)
}

// RevokeAllSessions signs the user out everywhere.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	sessions, err := s.sessionRepo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	if err := s.blacklist.RevokeUser(ctx, userID.String(), s.cfg.Session.TTL); err != nil {
		s.logger.Warn("failed to blacklist user sessions", zap.Error(err))
	}
	for _, session := range sessions {
		s.invalidateIdentity(ctx, session.TokenHash)
		s.publish(events.TypeSessionRevoked, session)
	}
	return nil
}

// PruneExpiredSessions deletes sessions past their expiry.
func (s *AuthService) PruneExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned expired sessions", zap.Int64("count", n))
	}
	return n, nil
}

// RequestVerification mails a signed link that, once opened, signs the
// address in.
func (s *AuthService) RequestVerification(ctx context.Context, address string) error {
	if s.tokenService == nil || s.emailService == nil {
		return ErrVerificationDisabled
	}

	token, _, err := s.tokenService.GenerateVerificationToken(strings.ToLower(address))
	if err != nil {
		return err
	}

	link := strings.TrimRight(s.cfg.Server.PublicURL, "/") + "/api/auth/verify?token=" + url.QueryEscape(token)
	return s.emailService.SendVerificationEmail(ctx, address, link)
}

// Verify validates a verification token and signs its address in, creating
// the user on first sight. Users whose email domain matches a company join it.
func (s *AuthService) Verify(ctx context.Context, token string, meta SessionMeta) (*IssuedSession, error) {
	if s.tokenService == nil {
		return nil, ErrVerificationDisabled
	}

	claims, err := s.tokenService.ValidateVerificationToken(token)
	if err != nil {
		s.logger.Info("rejected verification token", zap.Error(err))
		return nil, ErrInvalidVerification
	}

	user, err := s.userRepo.GetByEmail(ctx, claims.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		user, err = s.createVerifiedUser(ctx, claims.Email)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case !user.EmailVerified:
		user.EmailVerified = true
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	return s.issueSession(ctx, user, meta)
}

func (s *AuthService) createVerifiedUser(ctx context.Context, address string) (*domain.User, error) {
	now := time.Now()
	user := &domain.User{
		ID:            uuid.New(),
		Email:         address,
		Role:          domain.RoleLabel(domain.RoleLevelUser),
		RoleLevel:     domain.RoleLevelUser,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if at := strings.LastIndex(address, "@"); at >= 0 {
		company, err := s.companyRepo.GetByDomain(ctx, address[at+1:])
		if err == nil {
			user.CompanyID = &company.ID
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("created verified user", zap.String("email", address))
	return user, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *domain.User, meta SessionMeta) (*IssuedSession, error) {
	token, err := hash.NewToken(domain.SessionTokenPrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &domain.Session{
		ID:         uuid.New(),
		TokenHash:  hash.HashToken(token),
		UserID:     &user.ID,
		Email:      user.Email,
		UserAgent:  meta.UserAgent,
		IPAddress:  meta.IPAddress,
		ExpiresAt:  now.Add(s.cfg.Session.TTL),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	issued := &IssuedSession{Session: session, Token: token, User: user}
	if user.CompanyID != nil {
		if company, err := s.companyRepo.GetByID(ctx, *user.CompanyID); err == nil {
			issued.Company = company
		}
	}

	s.logger.Info("session issued",
		zap.String("session_id", session.ID.String()),
		zap.String("email", user.Email),
		zap.Int("role_level", user.RoleLevel))
	return issued, nil
}

// lookupSession resolves a raw token to a live, non-revoked session.
func (s *AuthService) lookupSession(ctx context.Context, token string) (*domain.Session, error) {
	tokenHash := hash.HashToken(token)

	revoked, err := s.blacklist.IsRevoked(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrSessionRevoked
	}

	session, err := s.sessionRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if session.UserID != nil {
		userRevoked, err := s.blacklist.IsUserRevoked(ctx, session.UserID.String(), session.CreatedAt)
		if err != nil {
			return nil, err
		}
		if userRevoked {
			return nil, ErrSessionRevoked
		}
	}

	return session, nil
}

func (s *AuthService) publish(eventType string, session *domain.Session) {
	userID := ""
	if session.UserID != nil {
		userID = session.UserID.String()
	}
	s.hub.Publish(events.NewEvent(eventType, userID, map[string]string{
		"sessionId": session.ID.String(),
		"email":     session.Email,
	}))
}

// RedirectQuery builds the query string the web app consumes after a
// verification link is opened.
func RedirectQuery(issued *IssuedSession) url.Values {
	q := url.Values{}
	q.Set("session_token", issued.Token)
	q.Set("verified_email", issued.User.Email)
	q.Set("role_level", strconv.Itoa(issued.User.RoleLevel))
	q.Set("verified", "true")
	if issued.Company != nil {
		q.Set("company_id", strconv.FormatInt(issued.Company.ID, 10))
		q.Set("company_name", issued.Company.Name)
	}
	return q
}
