// Package memory holds in-process repositories used when PostgreSQL is not
// reachable (the identity endpoint then reports databaseConnected=false) and
// in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/internal/repository"
	"github.com/google/uuid"
)

type UserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]domain.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[uuid.UUID]domain.User)}
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("failed to create user: email %s already exists", user.Email)
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", repository.ErrNotFound)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", repository.ErrNotFound)
}

func (r *UserRepo) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return fmt.Errorf("user not found: %w", repository.ErrNotFound)
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user not found: %w", repository.ErrNotFound)
	}
	now := time.Now()
	u.LastLoginAt = &now
	r.users[id] = u
	return nil
}

type CompanyRepo struct {
	mu        sync.RWMutex
	nextID    int64
	companies map[int64]domain.Company
}

func NewCompanyRepo() *CompanyRepo {
	return &CompanyRepo{companies: make(map[int64]domain.Company)}
}

func (r *CompanyRepo) Create(ctx context.Context, company *domain.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	company.ID = r.nextID
	r.companies[company.ID] = *company
	return nil
}

func (r *CompanyRepo) GetByID(ctx context.Context, id int64) (*domain.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, fmt.Errorf("company not found: %w", repository.ErrNotFound)
	}
	return &c, nil
}

func (r *CompanyRepo) GetByDomain(ctx context.Context, emailDomain string) (*domain.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.companies {
		if strings.EqualFold(c.Domain, emailDomain) {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("company not found: %w", repository.ErrNotFound)
}

type SessionRepo struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]domain.Session
	now      func() time.Time
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{sessions: make(map[uuid.UUID]domain.Session), now: time.Now}
}

func (r *SessionRepo) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TokenHash == session.TokenHash {
			return fmt.Errorf("failed to create session: duplicate token")
		}
	}
	r.sessions[session.ID] = *session
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", repository.ErrNotFound)
	}
	return &s, nil
}

func (r *SessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	for _, s := range r.sessions {
		if s.TokenHash == tokenHash && !s.IsExpired(now) {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("session not found or expired: %w", repository.ErrNotFound)
}

func (r *SessionRepo) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID != nil && *s.UserID == userID && !s.IsExpired(now) {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *SessionRepo) Update(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return fmt.Errorf("session not found: %w", repository.ErrNotFound)
	}
	r.sessions[session.ID] = *session
	return nil
}

func (r *SessionRepo) Touch(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	s.LastSeenAt = r.now()
	r.sessions[id] = s
	return nil
}

func (r *SessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.TokenHash == tokenHash {
			delete(r.sessions, id)
			return nil
		}
	}
	return fmt.Errorf("session not found: %w", repository.ErrNotFound)
}

func (r *SessionRepo) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID != nil && *s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var n int64
	for id, s := range r.sessions {
		if s.IsExpired(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}
