package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// OAuthHandler drives the browser redirect round trip for one provider.
type OAuthHandler struct {
	*AuthHandler
	Provider domain.Provider
}

func (h *OAuthHandler) callbackPath() string {
	return "/v1/auth/" + string(h.Provider) + "/callback"
}

// HandleStart godoc
//
//	@Summary		Start OAuth sign-in
//	@Description	Redirects to the provider's consent page. The state is kept in a short-lived cookie.
//	@Tags			OAuth
//	@Param			provider	path	string	true	"google or github"
//	@Success		302
//	@Failure		404	{object}	authsdk.ErrorEnvelope	"Provider not configured"
//	@Router			/v1/auth/{provider} [get]
func (h *OAuthHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	op, ok := h.Auth.OAuthProvider(h.Provider)
	if !ok {
		writeError(w, r, authsdk.NotFound("OAuth provider not configured"))
		return
	}
	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		writeError(w, r, authsdk.Internal(err))
		return
	}
	http.SetCookie(w, h.Cookies.cookie(StateCookie, state, h.callbackPath(), oauthStateTTL))
	http.Redirect(w, r, op.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback godoc
//
//	@Summary		Finish OAuth sign-in
//	@Description	Exchanges the authorization code, signs the user in (creating or linking the account) and sets the session cookies.
//	@Tags			OAuth
//	@Param			provider	path	string	true	"google or github"
//	@Param			code		query	string	true	"Authorization code"
//	@Param			state		query	string	true	"State echoed by the provider"
//	@Success		204
//	@Success		200	{object}	authsdk.MessageResponse	"Already signed in"
//	@Failure		401	{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/{provider}/callback [get]
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	want := cookieValue(r, StateCookie)
	h.Cookies.clear(w, StateCookie, h.callbackPath())

	if h.SignedIn(r) {
		writeMessage(w, http.StatusOK, "Already signed in")
		return
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		slogx.FromContext(r.Context()).Info("oauth consent denied",
			"provider", h.Provider, "reason", reason)
		writeError(w, r, authsdk.Unauthorized("OAuth sign-in was cancelled"))
		return
	}
	got := q.Get("state")
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		writeError(w, r, authsdk.Unauthorized("Invalid OAuth state"))
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, r, authsdk.Validation(map[string]any{"code": "Authorization code is required"}))
		return
	}

	u, err := h.Auth.SignInWithOAuth(r.Context(), h.Provider, code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.startSession(w, r, u.ID)
}
