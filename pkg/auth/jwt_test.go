package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/config"
)

func TestIssueAndParse(t *testing.T) {
	config.Set("JWT_SECRET", "test-secret")

	pair, err := IssuePair(42, "farmer", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.True(t, pair.RefreshExpiresAt.After(pair.ExpiresAt))

	claims, err := Parse(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "farmer", claims.Role)
	assert.Equal(t, "sess-1", claims.SessionID())

	_, err = Parse(pair.RefreshToken, TypeAccess)
	assert.ErrorIs(t, err, ErrWrongType, "refresh token cannot authenticate requests")

	_, err = Parse(pair.RefreshToken, TypeRefresh)
	assert.NoError(t, err)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	config.Set("JWT_SECRET", "one")
	pair, err := IssuePair(1, "buyer", "s")
	require.NoError(t, err)

	config.Set("JWT_SECRET", "two")
	_, err = Parse(pair.AccessToken, TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Parse("garbage", TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "s3cret-pass"))
}
