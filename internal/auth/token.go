// Package auth issues and parses guest display-name tokens. Tokens carry
// identity decoration only; nothing in the relay authorizes against them.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the guest token claims.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Config holds token signing configuration.
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Tokens issues and validates HS256 guest tokens.
type Tokens struct {
	cfg Config
}

// NewTokens creates a token service.
func NewTokens(cfg Config) *Tokens {
	return &Tokens{cfg: cfg}
}

// Issue creates a signed token carrying the given display name.
func (t *Tokens) Issue(name string) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.cfg.Secret)
}

// Parse validates a token and returns its claims.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if t.cfg.Issuer != "" && claims.Issuer != t.cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	return claims, nil
}
