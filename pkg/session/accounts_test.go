package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct{}

func (failingStorage) Get(string) (string, bool, error) { return "", false, errors.New("disk gone") }
func (failingStorage) Set(string, string) error { return errors.New("quota exceeded") }
func (failingStorage) Delete(string) error { return errors.New("disk gone") }

func TestSaveIsIdempotent(t *testing.T) {
	store := NewAccountStore(NewMemoryStorage(), nil)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, store.Save(SavedAccount{Email: "a@x.com", SessionToken: "prod-session-a", LastUsed: first}))
	require.NoError(t, store.Save(SavedAccount{Email: "a@x.com", SessionToken: "prod-session-a", LastUsed: second}))

	accounts := store.List()
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].LastUsed.Equal(second))
}

func TestSaveKeepsEmailsUnique(t *testing.T) {
	store := NewAccountStore(NewMemoryStorage(), nil)
	emails := []string{"a@x.com", "b@x.com", "A@x.com", "c@x.com", " b@x.com ", "a@x.com"}
	for i, email := range emails {
		require.NoError(t, store.Save(SavedAccount{Email: email, SessionToken: fmt.Sprintf("prod-session-%d", i)}))
	}

	seen := map[string]bool{}
	for _, a := range store.List() {
		assert.False(t, seen[a.Email], "duplicate %s", a.Email)
		seen[a.Email] = true
	}
	assert.Len(t, seen, 3)

	a, ok := store.Get("a@x.com")
	require.True(t, ok)
	assert.Equal(t, "prod-session-5", a.SessionToken)
}

func TestListFailsSoftOnCorruptState(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(KeySavedAccounts, "{not json"))
	store := NewAccountStore(storage, nil)

	accounts := store.List()
	assert.NotNil(t, accounts)
	assert.Empty(t, accounts)

	// The next save overwrites the corrupt blob.
	require.NoError(t, store.Save(SavedAccount{Email: "a@x.com", SessionToken: "prod-session-a"}))
	assert.Len(t, store.List(), 1)
}

func TestListDropsDuplicatesLeftByOlderWriters(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(KeySavedAccounts,
		`[{"email":"a@x.com","sessionToken":"old"},{"email":"A@X.com","sessionToken":"new"},{"email":"","sessionToken":"x"}]`))

	accounts := NewAccountStore(storage, nil).List()
	require.Len(t, accounts, 1)
	assert.Equal(t, "new", accounts[0].SessionToken)
}

func TestSaveRejectsIncompleteAccount(t *testing.T) {
	store := NewAccountStore(NewMemoryStorage(), nil)
	assert.ErrorIs(t, store.Save(SavedAccount{Email: "a@x.com"}), ErrInvalidAccount)
	assert.ErrorIs(t, store.Save(SavedAccount{SessionToken: "t"}), ErrInvalidAccount)
}

func TestRemoveAndUpdateLastUsed(t *testing.T) {
	store := NewAccountStore(NewMemoryStorage(), nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(SavedAccount{Email: "a@x.com", SessionToken: "ta", Role: "admin", RoleLevel: 998, LastUsed: now.Add(-time.Hour)}))
	require.NoError(t, store.Save(SavedAccount{Email: "b@x.com", SessionToken: "tb", LastUsed: now.Add(-2 * time.Hour)}))

	store.Remove("missing@x.com")
	assert.Len(t, store.List(), 2)

	store.UpdateLastUsed("b@x.com")
	b, ok := store.Get("b@x.com")
	require.True(t, ok)
	assert.True(t, b.LastUsed.Equal(now))
	assert.Equal(t, "tb", b.SessionToken)

	ordered := store.ByLastUsed()
	assert.Equal(t, "b@x.com", ordered[0].Email)

	store.Remove("A@x.com")
	accounts := store.List()
	require.Len(t, accounts, 1)
	assert.Equal(t, "b@x.com", accounts[0].Email)
}

func TestStoreDegradesToMemoryWhenPersistenceFails(t *testing.T) {
	store := NewAccountStore(failingStorage{}, nil)

	require.NoError(t, store.Save(SavedAccount{Email: "a@x.com", SessionToken: "ta"}))
	accounts := store.List()
	require.Len(t, accounts, 1)
	assert.Equal(t, "a@x.com", accounts[0].Email)
}

func TestFindByToken(t *testing.T) {
	store := NewAccountStore(NewMemoryStorage(), nil)
	require.NoError(t, store.Save(SavedAccount{Email: "a@x.com", SessionToken: "ta"}))

	a, ok := store.FindByToken("ta")
	require.True(t, ok)
	assert.Equal(t, "a@x.com", a.Email)

	_, ok = store.FindByToken("")
	assert.False(t, ok)
}

func TestBackupStore(t *testing.T) {
	storage := NewMemoryStorage()
	backups := NewBackupStore(storage, nil)

	_, ok := backups.Load()
	assert.False(t, ok)

	backups.Save(Backup{SessionToken: "prod-session-b", Email: "b@x.com"})
	b, ok := backups.Load()
	require.True(t, ok)
	assert.Equal(t, "prod-session-b", b.SessionToken)

	require.NoError(t, storage.Set(KeySessionBackup, "garbage"))
	_, ok = backups.Load()
	assert.False(t, ok)

	backups.Clear()
	_, present, _ := storage.Get(KeySessionBackup)
	assert.False(t, present)
}
