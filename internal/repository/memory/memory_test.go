package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/internal/repository"
)

func TestUserRepoEmailIsCaseInsensitiveKey(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo()

	u := &domain.User{ID: uuid.New(), Email: "a@x.com"}
	require.NoError(t, repo.Create(ctx, u))
	assert.Error(t, repo.Create(ctx, &domain.User{ID: uuid.New(), Email: "A@X.com"}))

	got, err := repo.GetByEmail(ctx, "A@x.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, repo.UpdateLastLogin(ctx, u.ID))
	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastLoginAt)

	_, err = repo.GetByEmail(ctx, "b@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionRepoExpiry(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo()
	now := time.Now()
	repo.now = func() time.Time { return now }

	userID := uuid.New()
	s := &domain.Session{ID: uuid.New(), TokenHash: "h", UserID: &userID, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	require.NoError(t, repo.Create(ctx, s))
	assert.Error(t, repo.Create(ctx, &domain.Session{ID: uuid.New(), TokenHash: "h"}))

	got, err := repo.GetByTokenHash(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	byUser, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	now = now.Add(2 * time.Minute)
	_, err = repo.GetByTokenHash(ctx, "h")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.ErrorIs(t, repo.DeleteByTokenHash(ctx, "h"), repository.ErrNotFound)
}

func TestCompanyRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewCompanyRepo()

	c := &domain.Company{Name: "Acme", Domain: "acme.test"}
	require.NoError(t, repo.Create(ctx, c))
	assert.Equal(t, int64(1), c.ID)

	got, err := repo.GetByDomain(ctx, "ACME.TEST")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)

	_, err = repo.GetByID(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
