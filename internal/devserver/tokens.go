package devserver

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager issues and verifies the bearer tokens handed to clients.
// Clients treat them as opaque; only the devserver inspects the claims.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a manager signing with the given secret. ttl
// defaults to 24h when non-positive.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token carrying the username and role.
func (m *TokenManager) Issue(username, role string) (string, error) {
	claims := jwt.MapClaims{
		"username": username,
		"role":     role,
		"exp":      time.Now().Add(m.ttl).Unix(),
		"jti":      uuid.NewString(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

// Verify parses a token and returns the username and role it carries.
// Implements middleware.TokenVerifier.
func (m *TokenManager) Verify(token string) (string, string, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !tkn.Valid {
		return "", "", errors.New("invalid token")
	}

	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	if username == "" {
		return "", "", errors.New("invalid token")
	}
	return username, role, nil
}
