package http

import (
	"errors"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

// CSRFBinding selects what a CSRF token is bound to.
type CSRFBinding string

const (
	// CSRFBindCookie binds tokens to a random csrf_sid cookie.
	CSRFBindCookie CSRFBinding = "cookie"
	// CSRFBindIP binds tokens to the client address.
	CSRFBindIP CSRFBinding = "ip"
)

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// csrfBindingKey resolves the key the caller's CSRF token is stored under.
// It is empty when the caller has no binding yet.
func (r *Router) csrfBindingKey(req *http.Request) string {
	if r.CSRFBinding == CSRFBindIP {
		return httpx.ClientIP(req)
	}
	return cookieValue(req, CSRFCookie)
}

// requireCSRF checks the X-CSRF header on state-changing requests.
func (r *Router) requireCSRF(guard *service.CSRFGuard) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if isSafeMethod(req.Method) {
				next.ServeHTTP(w, req)
				return
			}
			header := req.Header.Get(authsdk.CSRFHeader)
			if err := guard.Validate(req.Context(), r.csrfBindingKey(req), header); err != nil {
				writeError(w, req, err)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

var formContentTypes = []string{
	"application/x-www-form-urlencoded",
	"multipart/form-data",
	"text/plain",
}

// fetchMetadata rejects cross-site form posts, which browsers send without
// a CORS preflight. JSON requests are left to CORS and the CSRF check.
func fetchMetadata(allowedOrigins []string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || !isFormContent(r.Header.Get("Content-Type")) {
				next.ServeHTTP(w, r)
				return
			}
			site := r.Header.Get("Sec-Fetch-Site")
			origin := r.Header.Get("Origin")
			// Clients sending neither header are not browsers.
			browser := site != "" || origin != ""
			if browser && site != "same-origin" && site != "none" && !slices.Contains(allowedOrigins, origin) {
				writeError(w, r, authsdk.Forbidden("Cross-site request rejected",
					authsdk.WithDetails(map[string]any{"origin": origin})))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isFormContent(ct string) bool {
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return true
	}
	return slices.Contains(formContentTypes, strings.ToLower(mt))
}

// throttleSignIn turns away locked-out addresses before the body is read.
func throttleSignIn(t *service.Throttle) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := t.Check(r.Context(), httpx.ClientIP(r)); err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authFailure renders a missing or rejected access token.
func authFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		writeError(w, r, authsdk.Unauthorized("Access token not found"))
	case errors.Is(err, jwtx.ErrExpired):
		writeError(w, r, authsdk.Unauthorized("Access token expired", authsdk.WithCode(authsdk.CodeTokenExpired)))
	default:
		writeError(w, r, authsdk.Unauthorized("Invalid access token", authsdk.WithCode(authsdk.CodeTokenInvalid)))
	}
}

// requireAuth admits requests carrying a valid access token. When the
// caller also holds a refresh cookie, that token must not be revoked, so a
// signed-out or rotated-away session cannot keep using its access token.
func (r *Router) requireAuth() httpx.Middleware {
	authn := httpx.AuthnMiddleware(r.Sessions.Verifier, authFailure)
	return func(next http.Handler) http.Handler {
		checkRefresh := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			raw := cookieValue(req, RefreshCookie)
			if raw == "" {
				next.ServeHTTP(w, req)
				return
			}
			claims, err := r.Sessions.VerifyRefresh(raw)
			if err != nil {
				writeError(w, req, authsdk.Unauthorized("Invalid refresh token", authsdk.WithCode(authsdk.CodeTokenInvalid)))
				return
			}
			revoked, err := r.Sessions.Ledger.IsRevoked(req.Context(), claims.ID, raw)
			if err != nil {
				writeError(w, req, err)
				return
			}
			if revoked {
				writeError(w, req, authsdk.Unauthorized("Refresh token has been revoked", authsdk.WithCode(authsdk.CodeTokenRevoked)))
				return
			}
			next.ServeHTTP(w, req)
		})
		return authn(checkRefresh)
	}
}

// signedIn reports whether the request already carries a valid access
// token.
func (r *Router) signedIn(req *http.Request) bool {
	raw := httpx.AccessToken(req)
	if raw == "" {
		return false
	}
	_, err := r.Sessions.VerifyAccess(raw)
	return err == nil
}
