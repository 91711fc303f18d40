package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// Cookie names.
const (
	AccessCookie  = httpx.AccessCookie
	RefreshCookie = "refresh_token"
	CSRFCookie    = "csrf_sid"
	StateCookie   = "oauth_state"
)

// oauthStateTTL bounds how long a provider round trip may take.
const oauthStateTTL = 10 * time.Minute

// CookieConfig controls the attributes of every cookie the service sets.
type CookieConfig struct {
	// Secure marks cookies HTTPS-only. On in production.
	Secure bool
	Domain string
}

func (c CookieConfig) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) clear(w http.ResponseWriter, name, path string) {
	ck := c.cookie(name, "", path, 0)
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}

// setSession writes whichever halves of s are present.
func (c CookieConfig) setSession(w http.ResponseWriter, s domain.Session, now time.Time) {
	if s.AccessToken != "" {
		http.SetCookie(w, c.cookie(AccessCookie, s.AccessToken, "/", s.AccessExpiresAt.Sub(now)))
	}
	if s.RefreshToken != "" {
		http.SetCookie(w, c.cookie(RefreshCookie, s.RefreshToken, "/", s.RefreshExpiresAt.Sub(now)))
	}
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	c.clear(w, AccessCookie, "/")
	c.clear(w, RefreshCookie, "/")
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
