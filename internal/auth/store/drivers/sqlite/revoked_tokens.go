package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type revokedTokensRepo struct {
	db DBTX
}

func (r *revokedTokensRepo) RevokeToken(ctx context.Context, t domain.RevokedToken) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = nowFn()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (id, jti, token_hash, expires_at, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.JTI, t.TokenHash, toMillis(t.ExpiresAt), t.Reason, toMillis(created),
	)
	return mapConstraint(err)
}

func (r *revokedTokensRepo) IsRevoked(ctx context.Context, jti, tokenHash string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ? AND token_hash = ?)`,
		jti, tokenHash,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

func (r *revokedTokensRepo) DeleteExpiredRevocations(ctx context.Context, now time.Time, limit int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM revoked_tokens WHERE id IN (
			SELECT id FROM revoked_tokens WHERE expires_at < ? LIMIT ?
		)`, toMillis(now), limit)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
