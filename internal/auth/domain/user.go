package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the stored identity. Email is unique and always normalised with
// NormalizeEmail before it reaches the store.
type User struct {
	ID           string
	Email        string
	PasswordHash string // argon2 encoded; empty for OAuth-only accounts
	Role         Role
	VerifiedAt   *time.Time
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) Verified() bool { return u.VerifiedAt != nil }

// HasPassword reports whether the user can sign in with credentials.
func (u User) HasPassword() bool { return u.PasswordHash != "" }

// Profile is created alongside the user and holds display data.
type Profile struct {
	UserID    string
	Name      string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider string

const (
	ProviderCredentials Provider = "credentials"
	ProviderGoogle      Provider = "google"
	ProviderGitHub      Provider = "github"
)

type AccountType string

const (
	AccountCredentials AccountType = "credentials"
	AccountOAuth       AccountType = "oauth"
)

// Account links a user to a way of signing in. (UserID, Provider) is unique.
type Account struct {
	ID        string
	UserID    string
	Provider  Provider
	Type      AccountType
	CreatedAt time.Time
}

// SafeUser is the outward view of a user. It never carries the password
// hash, role or verification state.
type SafeUser struct {
	ID          string
	Email       string
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Profile     *Profile
	Providers   []Provider
}

// Sanitize strips secrets from u.
func (u User) Sanitize() SafeUser {
	return SafeUser{
		ID:          u.ID,
		Email:       u.Email,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
