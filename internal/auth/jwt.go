package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a session token fails verification for
// any reason other than a parse error.
var ErrInvalidToken = errors.New("invalid session token")

// Service signs and verifies short-lived session tokens. Tokens are HS256
// only; parsing restricts the accepted methods so a token cannot pick its
// own algorithm.
type Service struct {
	key []byte
	ttl time.Duration
}

// NewService builds a session token service from a shared secret and the
// lifetime each issued token gets.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{key: []byte(secret), ttl: ttl}
}

// GenerateToken signs a token for the subject. Extra claims are merged in
// first, so they can never override the registered sub/iat/exp claims.
func (s *Service) GenerateToken(subject string, extra map[string]any) (string, error) {
	claims := make(jwt.MapClaims, len(extra)+3)
	for k, v := range extra {
		claims[k] = v
	}
	now := time.Now()
	claims["sub"] = subject
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(s.ttl))

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// ValidateToken verifies signature and expiry and returns the claim set.
func (s *Service) ValidateToken(raw string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
