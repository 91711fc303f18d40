package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement this.
// It exposes sub-repositories to keep concerns tidy and testable, and so a
// Tx-scoped Store cannot start a nested transaction by accident.
type Store interface {
	Users() Users
	Profiles() Profiles
	Accounts() Accounts
	VerificationTokens() VerificationTokens
	RevokedTokens() RevokedTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail expects a normalised address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user. A duplicate email is ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// MarkVerified sets verified_at if it is not already set.
	MarkVerified(ctx context.Context, userID string, at time.Time) error

	// TouchLastLogin sets last_login_at.
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

type Profiles interface {
	CreateProfile(ctx context.Context, p domain.Profile) error
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
}

type Accounts interface {
	// CreateAccount inserts a link. A duplicate (user, provider) is
	// ErrAlreadyExists.
	CreateAccount(ctx context.Context, a domain.Account) error

	// ListAccounts returns a user's links ordered by creation.
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
}

type VerificationTokens interface {
	// UpsertToken replaces any live secret for (email, purpose).
	UpsertToken(ctx context.Context, t domain.VerificationToken) error

	GetToken(ctx context.Context, email string, purpose domain.Purpose) (domain.VerificationToken, error)

	// ConsumeToken deletes the row only if it still holds secretHash. It
	// returns ErrNotFound when another redemption got there first.
	ConsumeToken(ctx context.Context, id, secretHash string) error

	// DeleteExpiredTokens removes up to limit expired rows and returns how
	// many went.
	DeleteExpiredTokens(ctx context.Context, now time.Time, limit int) (int, error)
}

type RevokedTokens interface {
	// RevokeToken records a ledger entry. A repeated (jti, token_hash) is
	// ErrAlreadyExists.
	RevokeToken(ctx context.Context, t domain.RevokedToken) error

	IsRevoked(ctx context.Context, jti, tokenHash string) (bool, error)

	// DeleteExpiredRevocations removes up to limit entries whose token has
	// expired and returns how many went.
	DeleteExpiredRevocations(ctx context.Context, now time.Time, limit int) (int, error)
}
