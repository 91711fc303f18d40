package sqlite

import (
	"context"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type profilesRepo struct {
	db DBTX
}

func (r *profilesRepo) CreateProfile(ctx context.Context, p domain.Profile) error {
	now := nowFn()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, name, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.AvatarURL, toMillis(now), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *profilesRepo) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	var (
		p                domain.Profile
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, name, avatar_url, created_at, updated_at
		FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Name, &p.AvatarURL, &created, &updated)
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}
