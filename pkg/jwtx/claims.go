package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default session lifetimes.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenType separates access tokens from refresh tokens. Both are signed by
// the same key, so the type claim is what stops one being accepted as the
// other.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims

	// Type is "access" or "refresh".
	Type TokenType `json:"typ"`
}

// NewSessionClaims builds claims for one half of a session pair. Every call
// gets a fresh jti.
func NewSessionClaims(issuer, subject string, typ TokenType, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Type: typ,
	}
}

// NewJTI returns a random UUIDv4 for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// ValidateType checks the typ claim.
func (c *Claims) ValidateType(want TokenType) error {
	if c.Type != want {
		return ErrTokenType
	}
	return nil
}

// Expiry returns exp, or the zero time when the claim is absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
