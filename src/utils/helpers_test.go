package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	tok, err := GenerateJWT("alex", "alex@example.com", "Alex")
	require.NoError(t, err)

	claims, err := ParseJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "alex", claims.UID)
	assert.Equal(t, "alex", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(TOKEN_TTL), claims.ExpiresAt.Time, time.Minute)

	t.Setenv("JWT_SECRET", "rotated")
	_, err = ParseJWT(tok)
	assert.Error(t, err)
}

func TestParseJWTRejectsExpiredAndUnsigned(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": "alex",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	s, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ParseJWT(s)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"uid": "alex"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseJWT(none)
	assert.Error(t, err)

	_, err = GenerateJWT("", "", "")
	assert.Error(t, err)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 50, ParseLimit("", 50))
	assert.Equal(t, 50, ParseLimit("-3", 50))
	assert.Equal(t, 10, ParseLimit("10", 50))
}
