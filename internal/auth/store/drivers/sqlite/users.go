package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type usersRepo struct {
	db DBTX
}

const userColumns = `id, email, password_hash, role, verified_at, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u                   domain.User
		role                string
		verified, lastLogin sql.NullInt64
		created, updated    int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &verified, &lastLogin, &created, &updated); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Role = domain.Role(role)
	u.VerifiedAt = fromNullMillis(verified)
	u.LastLoginAt = fromNullMillis(lastLogin)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	role := u.Role
	if role == "" {
		role = domain.RoleUser
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = nowFn()
	}
	updated := u.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, string(role),
		toNullMillis(u.VerifiedAt), toNullMillis(u.LastLoginAt),
		toMillis(created), toMillis(updated),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return requireRow(r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, toMillis(nowFn()), userID))
}

func (r *usersRepo) MarkVerified(ctx context.Context, userID string, at time.Time) error {
	return requireRow(r.db.ExecContext(ctx,
		`UPDATE users SET verified_at = COALESCE(verified_at, ?), updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(nowFn()), userID))
}

func (r *usersRepo) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return requireRow(r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`,
		toMillis(at), userID))
}
