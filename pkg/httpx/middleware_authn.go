package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// AccessCookie is the cookie carrying the access token.
const AccessCookie = "access_token"

// TokenVerifier is satisfied by *jwtx.Verifier.
type TokenVerifier interface {
	Verify(token string, want jwtx.TokenType) (jwtx.Claims, error)
}

// AuthFailure renders a rejected request. err is nil when no token was sent.
type AuthFailure func(w http.ResponseWriter, r *http.Request, err error)

// AccessToken returns the access token from the cookie, falling back to an
// Authorization: Bearer header for non-browser clients.
func AccessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	authz := r.Header.Get("Authorization")
	if raw, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return strings.TrimSpace(raw)
	}
	return ""
}

// AuthnMiddleware requires a valid access token and stores its claims in
// the request context.
func AuthnMiddleware(v TokenVerifier, fail AuthFailure) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := AccessToken(r)
			if raw == "" {
				fail(w, r, nil)
				return
			}

			claims, err := v.Verify(raw, jwtx.TypeAccess)
			if err != nil {
				slogx.FromContext(ctx).Debug("access token rejected", "err", err)
				fail(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(ctx, claims)))
		})
	}
}
