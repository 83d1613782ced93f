package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseportal/messaging/pkg/jwt"
)

func newManager(t *testing.T, ttl time.Duration) *jwt.Manager {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return jwt.NewRSAManager(key, "test-issuer", ttl)
}

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	m := newManager(t, time.Minute)
	token, _, err := m.IssueAccessToken("user-1", "client")
	require.NoError(t, err)

	id, err := NewJWTVerifier(m).Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", Role: "client"}, id)
}

func TestJWTVerifierRejectsEveryFailureAsInvalid(t *testing.T) {
	m := newManager(t, time.Minute)
	other := newManager(t, time.Minute)

	foreign, _, err := other.IssueAccessToken("user-1", "client")
	require.NoError(t, err)

	expiredMgr := newManager(t, -time.Minute)
	expired, _, err := expiredMgr.IssueAccessToken("user-1", "client")
	require.NoError(t, err)

	cases := map[string]string{
		"empty":     "",
		"malformed": "not.a.jwt",
		"foreign":   foreign,
	}
	v := NewJWTVerifier(m)
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err = NewJWTVerifier(expiredMgr).Verify(context.Background(), expired)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestJWTVerifierRejectsRevokedUser(t *testing.T) {
	m := newManager(t, time.Minute)
	token, _, err := m.IssueAccessToken("user-1", "staff")
	require.NoError(t, err)

	m.RevokeUserTokens("user-1")

	_, err = NewJWTVerifier(m).Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestWithTimeoutTreatsSlowVerifierAsInvalid(t *testing.T) {
	slow := VerifierFunc(func(ctx context.Context, token string) (Identity, error) {
		select {
		case <-time.After(time.Second):
			return Identity{UserID: "user-1"}, nil
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		}
	})

	start := time.Now()
	_, err := WithTimeout(slow, 20*time.Millisecond).Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWithTimeoutPassesThroughFastResult(t *testing.T) {
	fast := VerifierFunc(func(ctx context.Context, token string) (Identity, error) {
		return Identity{UserID: "user-2", Role: "staff"}, nil
	})

	id, err := WithTimeout(fast, time.Second).Verify(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "user-2", id.UserID)
}

func TestMiddlewareFunc(t *testing.T) {
	v := VerifierFunc(func(ctx context.Context, token string) (Identity, error) {
		if token == "good" {
			return Identity{UserID: "u", Role: "client"}, nil
		}
		return Identity{}, ErrInvalid
	})

	userID, role, ok := MiddlewareFunc(v)(context.Background(), "good")
	assert.True(t, ok)
	assert.Equal(t, "u", userID)
	assert.Equal(t, "client", role)

	_, _, ok = MiddlewareFunc(v)(context.Background(), "bad")
	assert.False(t, ok)
}
