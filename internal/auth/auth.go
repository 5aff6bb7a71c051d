// Package auth implements client-facing authentication for the proxy: a
// static bearer token by default, or short-lived JWTs when a signing secret
// is configured.
package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	// TokenLifetime defines how long minted access tokens are valid
	TokenLifetime = 24 * time.Hour
)

var (
	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken is returned when the token is invalid for any reason
	ErrInvalidToken = errors.New("invalid token")
)

// TokenClaims are the JWT claims carried by a minted client token.
type TokenClaims struct {
	jwt.RegisteredClaims
	Subject string `json:"sub_name,omitempty"`
}

// VerifyAPIToken compares a presented bearer token against the configured
// one in constant time.
func VerifyAPIToken(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// CreateAccessToken mints a client JWT signed with secret.
func CreateAccessToken(subject, secret string) (string, error) {
	now := time.Now()

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        now.Format(time.RFC3339Nano),
		},
		Subject: subject,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateAccessToken validates and parses a client JWT.
func ValidateAccessToken(tokenString, secret string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
