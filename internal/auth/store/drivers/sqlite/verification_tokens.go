package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type verificationTokensRepo struct {
	db DBTX
}

// UpsertToken keeps one row per (email, purpose). The row id changes with
// every new secret, so a redemption holding the old id can never delete the
// replacement.
func (r *verificationTokensRepo) UpsertToken(ctx context.Context, t domain.VerificationToken) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = nowFn()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_tokens (id, email, purpose, secret_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email, purpose) DO UPDATE SET
			id          = excluded.id,
			secret_hash = excluded.secret_hash,
			expires_at  = excluded.expires_at,
			created_at  = excluded.created_at`,
		t.ID, t.Email, string(t.Purpose), t.SecretHash, toMillis(t.ExpiresAt), toMillis(created),
	)
	return err
}

func (r *verificationTokensRepo) GetToken(
	ctx context.Context,
	email string,
	purpose domain.Purpose,
) (domain.VerificationToken, error) {
	var (
		t                domain.VerificationToken
		p                string
		expires, created int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, purpose, secret_hash, expires_at, created_at
		FROM verification_tokens WHERE email = ? AND purpose = ?`,
		email, string(purpose),
	).Scan(&t.ID, &t.Email, &p, &t.SecretHash, &expires, &created)
	if err != nil {
		return domain.VerificationToken{}, mapNotFound(err)
	}
	t.Purpose = domain.Purpose(p)
	t.ExpiresAt = fromMillis(expires)
	t.CreatedAt = fromMillis(created)
	return t, nil
}

func (r *verificationTokensRepo) ConsumeToken(ctx context.Context, id, secretHash string) error {
	return requireRow(r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE id = ? AND secret_hash = ?`,
		id, secretHash))
}

func (r *verificationTokensRepo) DeleteExpiredTokens(ctx context.Context, now time.Time, limit int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM verification_tokens WHERE id IN (
			SELECT id FROM verification_tokens WHERE expires_at < ? LIMIT ?
		)`, toMillis(now), limit)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
