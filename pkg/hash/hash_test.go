package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestPasswordHasherRoundTrip(t *testing.T) {
	h := NewPasswordHasher(testConfig)

	encoded, err := h.Hash("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := h.Verify("correct horse battery", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyUsesStoredParameters(t *testing.T) {
	encoded, err := NewPasswordHasher(testConfig).Hash("pw-12345")
	require.NoError(t, err)

	ok, err := NewPasswordHasher(DefaultConfig).Verify("pw-12345", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h := NewPasswordHasher(testConfig)

	_, err := h.Verify("x", "plaintext")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = h.Verify("x", "$argon2id$v=1$m=1,t=1,p=1$AAAA$AAAA")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestNewTokenAndHash(t *testing.T) {
	a, err := NewToken("prod-session-")
	require.NoError(t, err)
	b, err := NewToken("prod-session-")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "prod-session-"))
	assert.Len(t, a, len("prod-session-")+32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, HashToken(a), HashToken(a))
	assert.NotEqual(t, HashToken(a), HashToken(b))
	assert.Len(t, HashToken(a), 64)
}
