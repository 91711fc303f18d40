package authsdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// ErrAlreadySignedIn is returned by SignIn when the server reports that the
// access cookie is still valid.
var ErrAlreadySignedIn = errors.New("authsdk: already signed in")

// FetchCSRF obtains a fresh CSRF token and remembers it for later requests.
func (c *SDKClient) FetchCSRF(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/v1/auth/csrf"), nil)
	if err != nil {
		return "", err
	}
	if c.ForwardedFor != "" {
		req.Header.Set("X-Forwarded-For", c.ForwardedFor)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}

	var out CSRFResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	c.setCSRFToken(out.CSRFToken)
	return out.CSRFToken, nil
}

// SignUp registers a credentials account. A verification email is sent.
func (c *SDKClient) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/signup", req)
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// SignIn authenticates with email and password. On success the session
// cookies are stored in the client's jar.
func (c *SDKClient) SignIn(ctx context.Context, req SignInRequest) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/signin", req)
	if err != nil {
		return err
	}
	status, err := checkStatus(resp, http.StatusNoContent, http.StatusOK)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return ErrAlreadySignedIn
	}
	return nil
}

// SignOut revokes the refresh token and clears the session cookies.
func (c *SDKClient) SignOut(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/v1/auth/signout", nil)
	if err != nil {
		return err
	}
	_, err = checkStatus(resp, http.StatusNoContent, http.StatusOK)
	return err
}

// Refresh rotates the session: the current refresh token is revoked and a
// new pair is stored in the jar.
func (c *SDKClient) Refresh(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/refresh", nil)
	if err != nil {
		return err
	}
	_, err = checkStatus(resp, http.StatusNoContent)
	return err
}

// RequestOTP emails a one-time code.
func (c *SDKClient) RequestOTP(ctx context.Context, email string) error {
	return c.message(ctx, "/v1/auth/otp", EmailRequest{Email: email})
}

// VerifyOTP redeems a one-time code and receives an access cookie.
func (c *SDKClient) VerifyOTP(ctx context.Context, email, otp string) error {
	return c.message(ctx, "/v1/auth/otp/verify", VerifyOTPRequest{Email: email, OTP: otp})
}

// RequestMagicLink emails a sign-in link.
func (c *SDKClient) RequestMagicLink(ctx context.Context, email string) error {
	return c.message(ctx, "/v1/auth/magic-link", EmailRequest{Email: email})
}

// VerifyMagicLink redeems a magic-link token and receives both cookies.
func (c *SDKClient) VerifyMagicLink(ctx context.Context, email, token string) error {
	return c.message(ctx, "/v1/auth/magic-link/verify?token="+url.QueryEscape(token), EmailRequest{Email: email})
}

// RequestEmailVerification emails a verification link.
func (c *SDKClient) RequestEmailVerification(ctx context.Context, email string) error {
	return c.message(ctx, "/v1/auth/email-verification", EmailRequest{Email: email})
}

// VerifyEmail redeems an email verification token.
func (c *SDKClient) VerifyEmail(ctx context.Context, email, token string) error {
	return c.message(ctx, "/v1/auth/email/verify?token="+url.QueryEscape(token), EmailRequest{Email: email})
}

// ForgotPassword emails a password reset link.
func (c *SDKClient) ForgotPassword(ctx context.Context, email string) error {
	return c.message(ctx, "/v1/auth/password/forget", EmailRequest{Email: email})
}

// ResetPassword redeems a reset token and sets a new password.
func (c *SDKClient) ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error {
	return c.message(ctx, "/v1/auth/password/reset?token="+url.QueryEscape(token), req)
}

// UpdatePassword changes the password of the signed-in user. The session
// is ended and must be re-established with SignIn.
func (c *SDKClient) UpdatePassword(ctx context.Context, req UpdatePasswordRequest) error {
	resp, err := c.doRequest(ctx, http.MethodPatch, "/v1/auth/password", req)
	if err != nil {
		return err
	}
	_, err = checkStatus(resp, http.StatusNoContent)
	return err
}

// Me returns the signed-in user.
func (c *SDKClient) Me(ctx context.Context) (*User, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/users/me", nil)
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *SDKClient) message(ctx context.Context, path string, body any) error {
	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, &MessageResponse{}, http.StatusOK)
}
