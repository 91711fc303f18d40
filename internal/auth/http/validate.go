package http

import (
	"net/mail"
	"strings"

	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
)

const minPasswordLength = 8

// fieldErrors collects the first problem found per field.
type fieldErrors map[string]any

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return authsdk.Validation(f)
}

// email accepts a bare address only and returns it lower-cased.
func (f fieldErrors) email(field, v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		f.add(field, "Email is required")
		return ""
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Name != "" || addr.Address != v {
		f.add(field, "Invalid email address")
		return ""
	}
	return strings.ToLower(v)
}

// password trims v and enforces the minimum length.
func (f fieldErrors) password(field, v, msg string) string {
	v = strings.TrimSpace(v)
	if len(v) < minPasswordLength {
		f.add(field, msg)
	}
	return v
}

func (f fieldErrors) required(field, v, msg string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		f.add(field, msg)
	}
	return v
}

func (f fieldErrors) matches(field, a, b, msg string) {
	if a != b {
		f.add(field, msg)
	}
}

func (f fieldErrors) otp(field, v string) string {
	v = strings.TrimSpace(v)
	if len(v) != 6 || strings.Trim(v, "0123456789") != "" {
		f.add(field, "OTP must be 6 digits")
	}
	return v
}

type signUpBody struct {
	authsdk.SignUpRequest
}

func (b *signUpBody) validate() error {
	f := fieldErrors{}
	b.Name = f.required("name", b.Name, "Name is required")
	b.Email = f.email("email", b.Email)
	b.Password = f.password("password", b.Password, "Password must be at least 8 characters long")
	b.ConfirmPassword = strings.TrimSpace(b.ConfirmPassword)
	f.matches("confirmPassword", b.Password, b.ConfirmPassword, "Passwords do not match")
	return f.err()
}

type signInBody struct {
	authsdk.SignInRequest
}

func (b *signInBody) validate() error {
	f := fieldErrors{}
	b.Email = f.email("email", b.Email)
	b.Password = f.password("password", b.Password, "Password must be at least 8 characters long")
	return f.err()
}

type emailBody struct {
	authsdk.EmailRequest
}

func (b *emailBody) validate() error {
	f := fieldErrors{}
	b.Email = f.email("email", b.Email)
	return f.err()
}

type verifyOTPBody struct {
	authsdk.VerifyOTPRequest
}

func (b *verifyOTPBody) validate() error {
	f := fieldErrors{}
	b.Email = f.email("email", b.Email)
	b.OTP = f.otp("otp", b.OTP)
	return f.err()
}

type resetPasswordBody struct {
	authsdk.ResetPasswordRequest
}

func (b *resetPasswordBody) validate() error {
	f := fieldErrors{}
	b.Email = f.email("email", b.Email)
	b.NewPassword = f.password("newPassword", b.NewPassword, "New password must be at least 8 characters long")
	b.ConfirmNewPassword = f.password("confirmNewPassword", b.ConfirmNewPassword, "Confirm new password is required")
	f.matches("confirmNewPassword", b.NewPassword, b.ConfirmNewPassword, "Passwords do not match")
	return f.err()
}

type updatePasswordBody struct {
	authsdk.UpdatePasswordRequest
}

func (b *updatePasswordBody) validate() error {
	f := fieldErrors{}
	b.CurrentPassword = f.password("currentPassword", b.CurrentPassword, "Current password is required")
	b.NewPassword = f.password("newPassword", b.NewPassword, "New password must be at least 8 characters long")
	b.ConfirmNewPassword = f.password("confirmNewPassword", b.ConfirmNewPassword, "Confirm new password is required")
	f.matches("confirmNewPassword", b.NewPassword, b.ConfirmNewPassword, "Passwords do not match")
	return f.err()
}

// tokenQuery reads the mandatory ?token= parameter.
func tokenQuery(f fieldErrors, token string) string {
	return f.required("token", token, "Token is required")
}
