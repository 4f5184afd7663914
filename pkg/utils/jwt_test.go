package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	m := NewJWTManager("test-secret", "nexusairbx")

	token, err := m.GenerateToken("user-1", "member", "access", time.Hour)
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "member", claims.Role)
	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, "nexusairbx", claims.Issuer)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", "nexusairbx")

	token, err := m.GenerateToken("user-1", "member", "access", -time.Minute)
	require.NoError(t, err)

	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", "nexusairbx")
	other := NewJWTManager("other-secret", "nexusairbx")

	token, err := m.GenerateToken("user-1", "member", "access", time.Hour)
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	m := NewJWTManager("test-secret", "issuer-a")
	other := NewJWTManager("test-secret", "issuer-b")

	token, err := m.GenerateToken("user-1", "member", "access", time.Hour)
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateTokenPairTypes(t *testing.T) {
	m := NewJWTManager("test-secret", "nexusairbx")

	pair, err := m.GenerateTokenPair("user-1", "member", time.Hour, 24*time.Hour)
	require.NoError(t, err)

	access, err := m.ParseToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access", access.Type)

	refresh, err := m.ParseToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh", refresh.Type)
}
