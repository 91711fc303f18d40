package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// UpdatePassword changes a signed-in user's password. The caller revokes
// the presented refresh token afterwards.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, current, next string) error {
	if current == next {
		return authsdk.BadRequest("New password must be different from current password")
	}

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return authsdk.NotFound("User not found")
	}
	if err != nil {
		return authsdk.Internal(err)
	}
	if !u.HasPassword() {
		return authsdk.BadRequest("This account uses OAuth, sign in with your provider or reset your password to enable email sign-in")
	}

	if err := s.Hasher.Verify(current, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return authsdk.BadRequest("Invalid current password")
		}
		return authsdk.Internal(err)
	}

	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return authsdk.Internal(fmt.Errorf("hash password: %w", err))
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return authsdk.Internal(err)
	}

	slogx.FromContext(ctx).Info("password updated", slog.String("user_id", u.ID))
	return nil
}
