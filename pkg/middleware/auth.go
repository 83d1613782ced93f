package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/caseportal/messaging/pkg/response"
)

const (
	UserIDKey     = "user_id"
	RoleKey       = "role"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// VerifyFunc resolves a bearer token to a user. ok is false for any token
// that must be rejected.
type VerifyFunc func(ctx context.Context, token string) (userID, role string, ok bool)

// AuthMiddleware validates bearer tokens on REST routes.
type AuthMiddleware struct {
	verify VerifyFunc
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(verify VerifyFunc) *AuthMiddleware {
	return &AuthMiddleware{verify: verify}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved user in the gin context. The response never says why a token was
// rejected.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, found := BearerToken(c.GetHeader(AuthHeaderKey))
		if !found {
			response.Unauthorized(c, "authentication required")
			return
		}

		userID, role, ok := m.verify(c.Request.Context(), token)
		if !ok {
			response.Unauthorized(c, "authentication required")
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(RoleKey, role)

		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetRole extracts the role from Gin context.
func GetRole(c *gin.Context) string {
	return c.GetString(RoleKey)
}
