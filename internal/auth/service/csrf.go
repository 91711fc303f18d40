package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/cache"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
)

// DefaultCSRFTTL is how long an issued CSRF token stays valid.
const DefaultCSRFTTL = time.Hour

// CSRFGuard issues one synchronizer token per binding key and checks it on
// state-changing requests.
type CSRFGuard struct {
	Cache cache.Cache
	TTL   time.Duration
}

func csrfKey(binding string) string { return "csrf:" + binding }

// Issue mints a token for binding, replacing any earlier one.
func (g *CSRFGuard) Issue(ctx context.Context, binding string) (string, error) {
	token, err := cryptox.GenerateHexToken(cryptox.TokenSize256)
	if err != nil {
		return "", authsdk.Internal(err)
	}
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	if err := g.Cache.Set(ctx, csrfKey(binding), token, ttl); err != nil {
		return "", authsdk.Internal(err)
	}
	return token, nil
}

// Validate compares header against the stored token for binding.
func (g *CSRFGuard) Validate(ctx context.Context, binding, header string) error {
	if header == "" {
		return authsdk.Unauthorized("CSRF token missing")
	}
	if binding == "" {
		return authsdk.Unauthorized("Invalid CSRF token")
	}

	stored, err := g.Cache.Get(ctx, csrfKey(binding))
	if errors.Is(err, cache.ErrMiss) {
		return authsdk.Unauthorized("Invalid CSRF token")
	}
	if err != nil {
		return authsdk.Internal(err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(header)) != 1 {
		return authsdk.Unauthorized("Invalid CSRF token")
	}
	return nil
}
