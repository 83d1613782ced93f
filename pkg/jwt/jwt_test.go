package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACRoundTrip(t *testing.T) {
	m, err := NewManager(Config{HMACSecret: "secret", Issuer: "portal", AccessDuration: time.Minute})
	require.NoError(t, err)

	token, exp, err := m.IssueAccessToken("1", "client")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.UserID)
	assert.Equal(t, "client", claims.PrimaryRole())
}

func TestRSARoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	m := NewRSAManager(key, "portal", time.Minute)

	token, _, err := m.IssueAccessToken("2", "staff")
	require.NoError(t, err)
	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff", claims.Role)
}

func TestValidateRejects(t *testing.T) {
	m, err := NewManager(Config{HMACSecret: "secret", Issuer: "portal"})
	require.NoError(t, err)
	other, err := NewManager(Config{HMACSecret: "other", Issuer: "portal"})
	require.NoError(t, err)
	wrongIssuer, err := NewManager(Config{HMACSecret: "secret", Issuer: "elsewhere"})
	require.NoError(t, err)

	foreign, _, err := other.IssueAccessToken("1", "client")
	require.NoError(t, err)
	_, err = m.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	misissued, _, err := wrongIssuer.IssueAccessToken("1", "client")
	require.NoError(t, err)
	_, err = m.ValidateToken(misissued)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := m.sign(&Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    "portal",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		UserID: "1",
		Type:   "access",
	})
	require.NoError(t, err)
	_, err = m.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	refresh, err := m.sign(&Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    "portal",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		UserID: "1",
		Type:   "refresh",
	})
	require.NoError(t, err)
	_, err = m.ValidateToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeUserTokens(t *testing.T) {
	m, err := NewManager(Config{HMACSecret: "secret", AccessDuration: time.Hour})
	require.NoError(t, err)

	token, _, err := m.IssueAccessToken("1", "client")
	require.NoError(t, err)
	m.RevokeUserTokens("1")

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestNewManagerNeedsKey(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
}

func TestPrimaryRoleFallsBackToList(t *testing.T) {
	c := &Claims{Roles: []string{"staff", "admin"}}
	assert.Equal(t, "staff", c.PrimaryRole())
}
