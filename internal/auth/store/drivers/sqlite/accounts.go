package sqlite

import (
	"context"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type accountsRepo struct {
	db DBTX
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = nowFn()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, provider, type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Provider), string(a.Type), toMillis(created),
	)
	return mapConstraint(err)
}

func (r *accountsRepo) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, provider, type, created_at
		FROM accounts WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var (
			a        domain.Account
			provider string
			typ      string
			created  int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &provider, &typ, &created); err != nil {
			return nil, err
		}
		a.Provider = domain.Provider(provider)
		a.Type = domain.AccountType(typ)
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}
	return out, rows.Err()
}
