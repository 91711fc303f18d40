package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
)

var (
	ErrUnknownEmail    = errors.New("identity: unknown email")
	ErrNoPassword      = errors.New("identity: account has no password")
	ErrBadPassword     = errors.New("identity: wrong password")
	ErrNoVerifiedEmail = errors.New("identity: provider returned no verified email")
)

// Credentials is whatever a strategy needs to establish who the caller is.
// Password strategies read Email and Password, OAuth strategies read Code.
type Credentials struct {
	Email    string
	Password string
	Code     string
}

// Identity is the result of a successful identification. User is set by
// strategies that resolve a stored user directly.
type Identity struct {
	Provider  domain.Provider
	Email     string
	Name      string
	AvatarURL string
	User      *domain.User
}

// Identifier is one way of signing in.
type Identifier interface {
	Identify(ctx context.Context, c Credentials) (Identity, error)
}

// PasswordIdentifier checks an email and password against the store.
type PasswordIdentifier struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher
}

func (p *PasswordIdentifier) Identify(ctx context.Context, c Credentials) (Identity, error) {
	email := domain.NormalizeEmail(c.Email)

	u, err := p.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, ErrUnknownEmail
	}
	if err != nil {
		return Identity{}, err
	}
	if !u.HasPassword() {
		return Identity{}, ErrNoPassword
	}

	if err := p.Hasher.Verify(c.Password, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return Identity{}, ErrBadPassword
		}
		return Identity{}, err
	}

	return Identity{Provider: domain.ProviderCredentials, Email: u.Email, User: &u}, nil
}
