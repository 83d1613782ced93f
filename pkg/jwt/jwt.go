package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
	ErrNoSigningKey = errors.New("manager has no signing key")
)

// Claims represents JWT claims issued by the portal's auth service.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"user_id"`
	Role   string   `json:"role,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	Type   string   `json:"type"` // "access" or "refresh"
}

// PrimaryRole returns Role, or the first entry of Roles for tokens issued
// with the older list form.
func (c *Claims) PrimaryRole() string {
	if c.Role != "" {
		return c.Role
	}
	if len(c.Roles) > 0 {
		return c.Roles[0]
	}
	return ""
}

// Config describes where keys come from. Either an RSA public key (and
// optionally the private key, for issuing) or an HMAC secret is required.
type Config struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	HMACSecret     string        `mapstructure:"hmac_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessDuration time.Duration `mapstructure:"access_duration"`
}

// Manager signs and validates tokens.
type Manager struct {
	privateKey     *rsa.PrivateKey
	publicKey      *rsa.PublicKey
	secret         []byte
	issuer         string
	accessDuration time.Duration

	revokedUsers map[string]time.Time
	mu           sync.Mutex
}

// NewManager builds a Manager from key files or a shared secret.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		issuer:         cfg.Issuer,
		accessDuration: cfg.AccessDuration,
		revokedUsers:   make(map[string]time.Time),
	}
	if m.accessDuration <= 0 {
		m.accessDuration = 15 * time.Minute
	}

	if cfg.HMACSecret != "" {
		m.secret = []byte(cfg.HMACSecret)
		return m, nil
	}

	if cfg.PrivateKeyPath != "" {
		raw, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(raw)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		m.privateKey = key
		m.publicKey = &key.PublicKey
	}

	if cfg.PublicKeyPath != "" {
		raw, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(raw)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		m.publicKey = key
	}

	if m.publicKey == nil {
		return nil, errors.New("jwt: no verification key configured")
	}
	return m, nil
}

// NewRSAManager wraps an in-memory key pair.
func NewRSAManager(key *rsa.PrivateKey, issuer string, accessDuration time.Duration) *Manager {
	return &Manager{
		privateKey:     key,
		publicKey:      &key.PublicKey,
		issuer:         issuer,
		accessDuration: accessDuration,
		revokedUsers:   make(map[string]time.Time),
	}
}

// IssueAccessToken signs an access token for userID.
func (m *Manager) IssueAccessToken(userID, role string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(m.accessDuration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID,
		Role:   role,
		Type:   "access",
	}

	token, err := m.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// ValidateToken validates an access token and returns its claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.Type != "access" {
		return nil, ErrInvalidToken
	}

	if m.IsRevoked(claims.UserID, claims.IssuedAt) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// RevokeUserTokens invalidates every token issued to userID up to now.
func (m *Manager) RevokeUserTokens(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokedUsers[userID] = time.Now()
}

// IsRevoked reports whether a token issued at issuedAt for userID predates
// a revocation. Entries older than one access lifetime are dropped.
func (m *Manager) IsRevoked(userID string, issuedAt *jwt.NumericDate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	revokedAt, ok := m.revokedUsers[userID]
	if !ok {
		return false
	}
	if time.Since(revokedAt) > m.accessDuration {
		delete(m.revokedUsers, userID)
		return false
	}
	return issuedAt == nil || !issuedAt.Time.After(revokedAt)
}

func (m *Manager) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if m.secret == nil {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	case *jwt.SigningMethodRSA:
		if m.publicKey == nil {
			return nil, ErrInvalidToken
		}
		return m.publicKey, nil
	default:
		return nil, ErrInvalidToken
	}
}

func (m *Manager) sign(claims *Claims) (string, error) {
	switch {
	case m.secret != nil:
		return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	case m.privateKey != nil:
		return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.privateKey)
	default:
		return "", ErrNoSigningKey
	}
}
