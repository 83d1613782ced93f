package auth

import (
	"context"
	"errors"
	"time"

	"github.com/caseportal/messaging/pkg/jwt"
	"github.com/caseportal/messaging/pkg/log"
)

// ErrInvalid is the only failure a Verifier reports.
var ErrInvalid = errors.New("invalid token")

// Identity is the user a token resolves to.
type Identity struct {
	UserID string
	Role   string
}

// Verifier resolves bearer tokens. Any failure, whatever its cause, is
// ErrInvalid.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTVerifier checks tokens locally against the auth service's signing key.
type JWTVerifier struct {
	manager *jwt.Manager
}

func NewJWTVerifier(manager *jwt.Manager) *JWTVerifier {
	return &JWTVerifier{manager: manager}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalid
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, ErrInvalid
	}

	claims, err := v.manager.ValidateToken(token)
	if err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("token rejected")
		return Identity{}, ErrInvalid
	}

	return Identity{UserID: claims.UserID, Role: claims.PrimaryRole()}, nil
}

type timeoutVerifier struct {
	next    Verifier
	timeout time.Duration
}

// WithTimeout bounds every call to next. A call still running when the
// timeout passes is abandoned and reported as ErrInvalid.
func WithTimeout(next Verifier, timeout time.Duration) Verifier {
	if timeout <= 0 {
		return next
	}
	return &timeoutVerifier{next: next, timeout: timeout}
}

func (v *timeoutVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	type result struct {
		id  Identity
		err error
	}
	ch := make(chan result, 1)
	go func() {
		id, err := v.next.Verify(ctx, token)
		ch <- result{id, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return Identity{}, ErrInvalid
		}
		return r.id, nil
	case <-ctx.Done():
		l := log.Ctx(ctx)
		l.Warn().Dur("timeout", v.timeout).Msg("token verification timed out")
		return Identity{}, ErrInvalid
	}
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// MiddlewareFunc adapts v to the REST auth middleware.
func MiddlewareFunc(v Verifier) func(ctx context.Context, token string) (string, string, bool) {
	return func(ctx context.Context, token string) (string, string, bool) {
		id, err := v.Verify(ctx, token)
		if err != nil {
			return "", "", false
		}
		return id.UserID, id.Role, true
	}
}
