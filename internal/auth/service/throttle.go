package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/cache"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
)

// Throttle defaults.
const (
	DefaultMaxSignInAttempts = 10
	DefaultBlockTTL          = 15 * time.Minute
	DefaultCaptchaThreshold  = 3
)

// Throttle counts failed sign-ins per client IP. Every failure re-arms the
// window, so an address stays locked until it has been quiet for Window.
type Throttle struct {
	Cache            cache.Cache
	Max              int
	Window           time.Duration
	CaptchaThreshold int
}

func throttleKey(ip string) string { return "signin_attempts:" + ip }

func (t *Throttle) max() int {
	if t.Max > 0 {
		return t.Max
	}
	return DefaultMaxSignInAttempts
}

func (t *Throttle) window() time.Duration {
	if t.Window > 0 {
		return t.Window
	}
	return DefaultBlockTTL
}

// Current returns the failure count for ip.
func (t *Throttle) Current(ctx context.Context, ip string) (int, error) {
	v, err := t.Cache.Get(ctx, throttleKey(ip))
	if errors.Is(err, cache.ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("throttle: bad counter %q: %w", v, err)
	}
	return n, nil
}

// Increment records a failure and returns the new count.
func (t *Throttle) Increment(ctx context.Context, ip string) (int, error) {
	n, err := t.Cache.Incr(ctx, throttleKey(ip), t.window())
	return int(n), err
}

// Reset clears the counter after a successful sign-in.
func (t *Throttle) Reset(ctx context.Context, ip string) error {
	return t.Cache.Del(ctx, throttleKey(ip))
}

// Check returns TooManyRequests while ip is locked out. It also returns the
// current count so callers need not read it twice.
func (t *Throttle) Check(ctx context.Context, ip string) (int, error) {
	n, err := t.Current(ctx, ip)
	if err != nil {
		return 0, authsdk.Internal(err)
	}
	if n < t.max() {
		return n, nil
	}

	ttl, err := t.Cache.TTL(ctx, throttleKey(ip))
	if err != nil {
		return n, authsdk.Internal(err)
	}
	if ttl <= 0 {
		return n, nil
	}
	retryAfter := int(math.Ceil(ttl.Seconds()))
	return n, authsdk.TooManyRequests("Too many sign-in attempts, please try again later",
		authsdk.WithDetails(map[string]any{"retryAfter": retryAfter}),
	)
}

// RequiresCaptcha reports whether a client with n failures must solve a
// CAPTCHA before its credentials are checked.
func (t *Throttle) RequiresCaptcha(n int) bool {
	threshold := t.CaptchaThreshold
	if threshold <= 0 {
		threshold = DefaultCaptchaThreshold
	}
	return n > threshold
}
