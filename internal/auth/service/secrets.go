package service

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
)

// Default lifetimes of out-of-band secrets.
const (
	DefaultOTPTTL               = time.Minute
	DefaultMagicLinkTTL         = time.Hour
	DefaultEmailVerificationTTL = time.Hour
	DefaultPasswordResetTTL     = time.Hour
)

// Secret is a freshly minted verification secret. Raw goes to the user
// exactly once; only Hash is stored.
type Secret struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// SecretTTLs configures each purpose independently.
type SecretTTLs struct {
	OTP               time.Duration
	MagicLink         time.Duration
	EmailVerification time.Duration
	PasswordReset     time.Duration
}

// Secrets mints and checks OTPs and opaque link tokens.
type Secrets struct {
	// Cost is the bcrypt cost. Zero means cryptox.DefaultSecretCost.
	Cost int
	TTLs SecretTTLs
}

// TTL returns the configured lifetime for purpose.
func (s *Secrets) TTL(purpose domain.Purpose) time.Duration {
	pick := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	switch purpose {
	case domain.PurposeOTP:
		return pick(s.TTLs.OTP, DefaultOTPTTL)
	case domain.PurposeMagicLink:
		return pick(s.TTLs.MagicLink, DefaultMagicLinkTTL)
	case domain.PurposeEmailVerification:
		return pick(s.TTLs.EmailVerification, DefaultEmailVerificationTTL)
	case domain.PurposePasswordReset:
		return pick(s.TTLs.PasswordReset, DefaultPasswordResetTTL)
	default:
		return 0
	}
}

// Generate mints the kind of secret purpose calls for.
func (s *Secrets) Generate(purpose domain.Purpose, now time.Time) (Secret, error) {
	if purpose == domain.PurposeOTP {
		return s.OTP(now)
	}
	return s.OpaqueToken(purpose, now)
}

// OTP returns a six digit numeric code.
func (s *Secrets) OTP(now time.Time) (Secret, error) {
	code, err := cryptox.GenerateOTP(otp.DigitsSix)
	if err != nil {
		return Secret{}, err
	}
	return s.seal(code, now.Add(s.TTL(domain.PurposeOTP)))
}

// OpaqueToken returns a 256-bit base64url token for link based flows.
func (s *Secrets) OpaqueToken(purpose domain.Purpose, now time.Time) (Secret, error) {
	ttl := s.TTL(purpose)
	if ttl == 0 || purpose == domain.PurposeOTP {
		return Secret{}, fmt.Errorf("secrets: no opaque token for purpose %q", purpose)
	}
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return Secret{}, err
	}
	return s.seal(raw, now.Add(ttl))
}

// Verify reports whether raw matches hash.
func (s *Secrets) Verify(raw, hash string) bool {
	return cryptox.CompareSecret(raw, hash)
}

func (s *Secrets) seal(raw string, expires time.Time) (Secret, error) {
	hash, err := cryptox.HashSecret(raw, s.Cost)
	if err != nil {
		return Secret{}, fmt.Errorf("hash secret: %w", err)
	}
	return Secret{Raw: raw, Hash: hash, ExpiresAt: expires}, nil
}
