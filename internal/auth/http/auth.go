package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
)

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
	CSRF     *service.CSRFGuard
	Cookies  CookieConfig

	// Binding selects how CSRF tokens are keyed.
	Binding CSRFBinding

	// SignedIn reports whether a request already holds a valid access
	// token.
	SignedIn func(*http.Request) bool
}

func toUser(u domain.SafeUser) authsdk.User {
	out := authsdk.User{
		ID:          u.ID,
		Email:       u.Email,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if u.Profile != nil {
		out.Profile = &authsdk.Profile{Name: u.Profile.Name, AvatarURL: u.Profile.AvatarURL}
	}
	for _, p := range u.Providers {
		out.Providers = append(out.Providers, string(p))
	}
	return out
}

// decode reads a JSON body into dst and runs its validation.
func decode[T interface{ validate() error }](w http.ResponseWriter, r *http.Request, dst T) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		writeError(w, r, authsdk.BadRequest("Invalid request body", authsdk.WithCause(err)))
		return false
	}
	if err := dst.validate(); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

// HandleCSRF godoc
//
//	@Summary		Issue CSRF token
//	@Description	Returns a token that must be echoed in the X-CSRF header on every state-changing request.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.CSRFResponse
//	@Router			/v1/auth/csrf [get]
func (h *AuthHandler) HandleCSRF(w http.ResponseWriter, r *http.Request) {
	var binding string
	if h.Binding == CSRFBindIP {
		binding = httpx.ClientIP(r)
	} else {
		binding = cookieValue(r, CSRFCookie)
		if _, err := idx.Parse(binding); err != nil {
			binding = idx.NewString()
		}
		ttl := h.CSRF.TTL
		if ttl <= 0 {
			ttl = service.DefaultCSRFTTL
		}
		http.SetCookie(w, h.Cookies.cookie(CSRFCookie, binding, "/", ttl))
	}

	token, err := h.CSRF.Issue(r.Context(), binding)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.CSRFResponse{CSRFToken: token})
}

// HandleSignUp godoc
//
//	@Summary		Sign up
//	@Description	Creates a credentials account and emails a verification link.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.SignUpRequest	true	"New account"
//	@Success		201		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.ErrorEnvelope
//	@Failure		409		{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/signup [post]
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var body signUpBody
	if !decode(w, r, &body) {
		return
	}
	u, err := h.Auth.SignUp(r.Context(), service.SignUpInput{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.UserResponse{User: toUser(u)})
}

// HandleSignIn godoc
//
//	@Summary		Sign in
//	@Description	Checks email and password and sets the access and refresh cookies. Repeated failures from one address require a CAPTCHA and then lock the address out.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.SignInRequest	true	"Credentials"
//	@Success		204
//	@Success		200	{object}	authsdk.MessageResponse	"Already signed in"
//	@Failure		400	{object}	authsdk.ErrorEnvelope
//	@Failure		429	{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/signin [post]
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	if h.SignedIn(r) {
		writeMessage(w, http.StatusOK, "Already signed in")
		return
	}
	var body signInBody
	if !decode(w, r, &body) {
		return
	}

	ctx := r.Context()
	u, err := h.Auth.SignIn(ctx, service.SignInInput{
		Email:        body.Email,
		Password:     body.Password,
		CaptchaToken: body.CaptchaToken,
	}, httpx.ClientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.startSession(w, r, u.ID)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID string) {
	sess, err := h.Sessions.Issue(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Cookies.setSession(w, sess, time.Now())
	w.WriteHeader(http.StatusNoContent)
}

// HandleSignOut godoc
//
//	@Summary		Sign out
//	@Description	Revokes the refresh token and clears the session cookies.
//	@Tags			Auth
//	@Produce		json
//	@Success		204
//	@Success		200	{object}	authsdk.MessageResponse	"Already signed out"
//	@Router			/v1/auth/signout [delete]
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	raw := cookieValue(r, RefreshCookie)
	h.Cookies.clearSession(w)
	if raw == "" {
		writeMessage(w, http.StatusOK, "Already signed out")
		return
	}
	if err := h.Sessions.Revoke(r.Context(), raw, domain.RevokeLogout); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefresh godoc
//
//	@Summary		Rotate session
//	@Description	Redeems the refresh cookie once and sets a new token pair.
//	@Tags			Auth
//	@Produce		json
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/refresh [post]
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := cookieValue(r, RefreshCookie)
	h.Cookies.clearSession(w)

	sess, err := h.Sessions.Refresh(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Cookies.setSession(w, sess, time.Now())
	w.WriteHeader(http.StatusNoContent)
}

// HandleRequestOTP godoc
//
//	@Summary		Request OTP
//	@Description	Emails a six digit one-time code. Any earlier code is invalidated.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.EmailRequest	true	"Recipient"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		404		{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/otp [post]
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	h.request(w, r, h.Auth.RequestOTP, "OTP sent")
}

// HandleRequestMagicLink godoc
//
//	@Summary		Request magic link
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.EmailRequest	true	"Recipient"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		404		{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/magic-link [post]
func (h *AuthHandler) HandleRequestMagicLink(w http.ResponseWriter, r *http.Request) {
	h.request(w, r, h.Auth.RequestMagicLink, "Magic link sent")
}

// HandleRequestEmailVerification godoc
//
//	@Summary		Resend verification email
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.EmailRequest	true	"Recipient"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorEnvelope	"Email already verified"
//	@Router			/v1/auth/email-verification [post]
func (h *AuthHandler) HandleRequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	h.request(w, r, h.Auth.RequestEmailVerification, "Email verification sent")
}

// HandleForgotPassword godoc
//
//	@Summary		Request password reset
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.EmailRequest	true	"Recipient"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Router			/v1/auth/password/forget [post]
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	h.request(w, r, h.Auth.RequestPasswordReset, "Password reset link sent")
}

func (h *AuthHandler) request(w http.ResponseWriter, r *http.Request, send func(ctx context.Context, email string) error, msg string) {
	var body emailBody
	if !decode(w, r, &body) {
		return
	}
	if err := send(r.Context(), body.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

// HandleVerifyOTP godoc
//
//	@Summary		Verify OTP
//	@Description	Redeems a one-time code and sets an access cookie.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.VerifyOTPRequest	true	"Code"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorEnvelope	"token_invalid or token_expired"
//	@Failure		404		{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/otp/verify [post]
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body verifyOTPBody
	if !decode(w, r, &body) {
		return
	}
	ctx := r.Context()
	u, err := h.Auth.VerifyOTP(ctx, body.Email, body.OTP)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.Sessions.IssueAccess(ctx, u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Cookies.setSession(w, sess, time.Now())
	writeMessage(w, http.StatusOK, "OTP verified")
}

// HandleVerifyMagicLink godoc
//
//	@Summary		Verify magic link
//	@Description	Redeems a magic-link token and sets both session cookies.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			token	query		string					true	"Link token"
//	@Param			body	body		authsdk.EmailRequest	true	"Owner"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorEnvelope
//	@Failure		404		{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/magic-link/verify [post]
func (h *AuthHandler) HandleVerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	token, email, ok := decodeLink(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	u, err := h.Auth.VerifyMagicLink(ctx, email, token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.Sessions.Issue(ctx, u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Cookies.setSession(w, sess, time.Now())
	writeMessage(w, http.StatusOK, "Magic link verified")
}

// HandleVerifyEmail godoc
//
//	@Summary		Verify email address
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			token	query		string					true	"Link token"
//	@Param			body	body		authsdk.EmailRequest	true	"Owner"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorEnvelope
//	@Failure		404		{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/email/verify [post]
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token, email, ok := decodeLink(w, r)
	if !ok {
		return
	}
	if _, err := h.Auth.VerifyEmail(r.Context(), email, token); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email verification successful")
}

// decodeLink reads the ?token= of an emailed link and the email body.
func decodeLink(w http.ResponseWriter, r *http.Request) (token, email string, ok bool) {
	var body emailBody
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		writeError(w, r, authsdk.BadRequest("Invalid request body", authsdk.WithCause(err)))
		return "", "", false
	}
	f := fieldErrors{}
	token = tokenQuery(f, r.URL.Query().Get("token"))
	email = f.email("email", body.Email)
	if err := f.err(); err != nil {
		writeError(w, r, err)
		return "", "", false
	}
	return token, email, true
}

// HandleResetPassword godoc
//
//	@Summary		Reset password
//	@Description	Redeems a reset token and sets a new password. The address counts as verified afterwards.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			token	query		string							true	"Link token"
//	@Param			body	body		authsdk.ResetPasswordRequest	true	"New password"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorEnvelope
//	@Failure		404		{object}	authsdk.ErrorEnvelope
//	@Router			/v1/auth/password/reset [post]
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordBody
	if !decode(w, r, &body) {
		return
	}
	f := fieldErrors{}
	token := tokenQuery(f, r.URL.Query().Get("token"))
	if err := f.err(); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Auth.ResetPassword(r.Context(), body.Email, token, body.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successful")
}

// HandleUpdatePassword godoc
//
//	@Summary		Change password
//	@Description	Changes the signed-in user's password, revokes the refresh token and clears the session cookies.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body	authsdk.UpdatePasswordRequest	true	"Passwords"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorEnvelope
//	@Failure		401	{object}	authsdk.ErrorEnvelope
//	@Security		CookieAuth
//	@Router			/v1/auth/password [patch]
func (h *AuthHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var body updatePasswordBody
	if !decode(w, r, &body) {
		return
	}
	ctx := r.Context()
	userID, _ := httpx.UserID(ctx)
	if err := h.Auth.UpdatePassword(ctx, userID, body.CurrentPassword, body.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Sessions.Revoke(ctx, cookieValue(r, RefreshCookie), domain.RevokePasswordChange); err != nil {
		writeError(w, r, err)
		return
	}
	h.Cookies.clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}
