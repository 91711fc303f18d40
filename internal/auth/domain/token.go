package domain

import "time"

// Purpose scopes a verification secret. At most one live secret exists per
// (email, purpose).
type Purpose string

const (
	PurposeOTP               Purpose = "otp"
	PurposeMagicLink         Purpose = "magic_link"
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// VerificationToken is a stored out-of-band secret. Only the hash is kept.
type VerificationToken struct {
	ID         string
	Email      string
	Purpose    Purpose
	SecretHash string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

func (t VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Reasons recorded against a revoked refresh token.
const (
	RevokeLogout         = "User logged out"
	RevokePasswordChange = "Password changed"
	RevokeRotation       = "Refresh token rotation"
)

// RevokedToken is a ledger entry. TokenHash is a SHA-256 fingerprint of the
// raw refresh JWT; the raw token is never stored.
type RevokedToken struct {
	ID        string
	JTI       string
	TokenHash string
	ExpiresAt time.Time
	Reason    string
	CreatedAt time.Time
}

// Session is a freshly issued access/refresh pair.
type Session struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
