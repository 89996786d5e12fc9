package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/pkg/cache"
	"go.uber.org/zap"
)

func identityKey(tokenHash string) string {
	return fmt.Sprintf("identity:%s", tokenHash)
}

// Me answers "who am I" for a raw session token. It never fails because of
// a bad credential; those are reported through the returned flags.
func (s *AuthService) Me(ctx context.Context, token string) (*domain.Identity, *domain.Session, error) {
	identity := &domain.Identity{DatabaseConnected: s.databaseConnected}
	if token == "" {
		return identity, nil, nil
	}

	session, err := s.lookupSession(ctx, token)
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrInvalidSessionToken):
		return identity, nil, nil
	case errors.Is(err, ErrSessionRevoked):
		identity.SessionExists = true
		return identity, nil, nil
	case err != nil:
		return nil, nil, err
	}

	identity.SessionExists = true
	identity.SessionValid = true

	if cached, ok := s.cachedIdentity(ctx, session.TokenHash); ok {
		cached.DatabaseConnected = s.databaseConnected
		return cached, session, nil
	}

	if session.UserID == nil {
		return identity, session, nil
	}

	user, err := s.userRepo.GetByID(ctx, *session.UserID)
	if err != nil {
		s.logger.Warn("session references missing user", zap.String("session_id", session.ID.String()), zap.Error(err))
		return identity, session, nil
	}

	identity.Authenticated = true
	identity.User = &domain.IdentityUser{
		ID:        user.ID.String(),
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		RoleLevel: user.RoleLevel,
		CompanyID: user.CompanyID,
	}
	if user.CompanyID != nil {
		if company, err := s.companyRepo.GetByID(ctx, *user.CompanyID); err == nil {
			identity.User.CompanyName = company.Name
		}
	}

	if err := s.sessionRepo.Touch(ctx, session.ID); err != nil {
		s.logger.Warn("failed to touch session", zap.Error(err))
	}
	s.storeIdentity(ctx, session.TokenHash, identity)

	return identity, session, nil
}

func (s *AuthService) cachedIdentity(ctx context.Context, tokenHash string) (*domain.Identity, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, identityKey(tokenHash))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("identity cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var identity domain.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, false
	}
	return &identity, true
}

func (s *AuthService) storeIdentity(ctx context.Context, tokenHash string, identity *domain.Identity) {
	if s.cache == nil || s.cfg.Session.IdentityCacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(identity)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, identityKey(tokenHash), string(raw), s.cfg.Session.IdentityCacheTTL); err != nil {
		s.logger.Warn("identity cache write failed", zap.Error(err))
	}
}

func (s *AuthService) invalidateIdentity(ctx context.Context, tokenHash string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, identityKey(tokenHash)); err != nil {
		s.logger.Warn("identity cache delete failed", zap.Error(err))
	}
}
