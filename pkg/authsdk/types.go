package authsdk

import "time"

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

// MessageResponse is the body of most successful auth operations.
type MessageResponse struct {
	Message string `json:"message"`
}

// CSRFResponse is returned by GET /v1/auth/csrf.
type CSRFResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// Profile is the public profile attached to a user.
type Profile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// User is the sanitized user view. It never carries a password hash.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Profile     *Profile   `json:"profile,omitempty"`
	Providers   []string   `json:"providers,omitempty"`
}

// UserResponse wraps a User.
type UserResponse struct {
	User User `json:"user"`
}

// SignUpRequest is the body of POST /v1/auth/signup.
type SignUpRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// SignInRequest is the body of POST /v1/auth/signin.
type SignInRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

// EmailRequest is the body of every request-phase endpoint and of the
// link verification endpoints.
type EmailRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest is the body of POST /v1/auth/otp/verify.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// ResetPasswordRequest is the body of POST /v1/auth/password/reset.
type ResetPasswordRequest struct {
	Email              string `json:"email"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// UpdatePasswordRequest is the body of PATCH /v1/auth/password.
type UpdatePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}
