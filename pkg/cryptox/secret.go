package cryptox

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultSecretCost is the bcrypt cost used for verification secrets.
const DefaultSecretCost = 12

// HashSecret hashes a short-lived verification secret (OTP digits, link
// tokens) with bcrypt at the given cost. Out-of-range costs fall back to
// DefaultSecretCost.
func HashSecret(secret string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultSecretCost
	}

	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("cryptox: hash secret: %w", err)
	}
	return string(b), nil
}

// CompareSecret reports whether secret matches a hash from HashSecret.
// Malformed hashes never match.
func CompareSecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
