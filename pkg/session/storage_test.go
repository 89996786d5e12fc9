package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profile")
	s, err := NewFileStorage(dir)
	require.NoError(t, err)

	_, ok, err := s.Get(KeySavedAccounts)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeySavedAccounts, `[]`))
	v, ok, err := s.Get(KeySavedAccounts)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, v)

	_, err = os.Stat(filepath.Join(dir, KeySavedAccounts+tmpSuffix))
	assert.True(t, os.IsNotExist(err), "temporary file must be renamed away")

	require.NoError(t, s.Delete(KeySavedAccounts))
	require.NoError(t, s.Delete(KeySavedAccounts))
	_, ok, _ = s.Get(KeySavedAccounts)
	assert.False(t, ok)

	for _, bad := range []string{"", "../escape", ".hidden", `a\b`} {
		assert.Error(t, s.Set(bad, "x"), bad)
	}
}

func TestFileStorageSharedBetweenStores(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewFileStorage(dir)
	require.NoError(t, err)
	s2, err := NewFileStorage(dir)
	require.NoError(t, err)

	require.NoError(t, NewAccountStore(s1, nil).Save(SavedAccount{Email: "a@x.com", SessionToken: "ta"}))
	accounts := NewAccountStore(s2, nil).List()
	require.Len(t, accounts, 1)
	assert.Equal(t, "a@x.com", accounts[0].Email)
}

func TestFileStorageWatch(t *testing.T) {
	dir := t.TempDir()
	watched, err := NewFileStorage(dir)
	require.NoError(t, err)
	writer, err := NewFileStorage(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := watched.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, writer.Set(KeySavedAccounts, `[]`))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Key == KeySavedAccounts {
				cancel()
				for range ch {
				}
				return
			}
			assert.NotContains(t, ev.Key, tmpSuffix)
		case <-timeout:
			t.Fatal("no storage event received")
		}
	}
}
