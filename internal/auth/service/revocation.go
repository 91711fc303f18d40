package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
)

// DefaultPruneBatchSize bounds each cleanup DELETE.
const DefaultPruneBatchSize = 100

// RevocationLedger records refresh tokens that must never be accepted
// again. Entries are keyed by (jti, fingerprint of the raw token).
type RevocationLedger struct {
	Store store.Store
	Clock Clock
}

// Revoke adds an entry. A repeat is Conflict "Token already revoked".
func (l *RevocationLedger) Revoke(ctx context.Context, jti, rawToken string, expiresAt time.Time, reason string) error {
	return revokeIn(ctx, l.Store, l.Clock.now(), jti, rawToken, expiresAt, reason)
}

func revokeIn(ctx context.Context, s store.Store, now time.Time, jti, rawToken string, expiresAt time.Time, reason string) error {
	err := s.RevokedTokens().RevokeToken(ctx, domain.RevokedToken{
		ID:        idx.NewAt(now).String(),
		JTI:       jti,
		TokenHash: cryptox.FingerprintToken(rawToken),
		ExpiresAt: expiresAt,
		Reason:    reason,
		CreatedAt: now,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return authsdk.Conflict("Token already revoked", authsdk.WithCode(authsdk.CodeTokenRevoked))
	}
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (l *RevocationLedger) IsRevoked(ctx context.Context, jti, rawToken string) (bool, error) {
	revoked, err := l.Store.RevokedTokens().IsRevoked(ctx, jti, cryptox.FingerprintToken(rawToken))
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}

// Prune deletes expired ledger entries and expired verification secrets in
// batches of batchSize until a batch comes back short. It returns the
// total number of rows removed.
func (l *RevocationLedger) Prune(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultPruneBatchSize
	}
	now := l.Clock.now()

	revoked, err := drain(ctx, batchSize, func(ctx context.Context) (int, error) {
		return l.Store.RevokedTokens().DeleteExpiredRevocations(ctx, now, batchSize)
	})
	if err != nil {
		return revoked, fmt.Errorf("prune revoked tokens: %w", err)
	}

	secrets, err := drain(ctx, batchSize, func(ctx context.Context) (int, error) {
		return l.Store.VerificationTokens().DeleteExpiredTokens(ctx, now, batchSize)
	})
	if err != nil {
		return revoked + secrets, fmt.Errorf("prune verification tokens: %w", err)
	}

	return revoked + secrets, nil
}

func drain(ctx context.Context, batchSize int, step func(context.Context) (int, error)) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := step(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < batchSize {
			return total, nil
		}
	}
}
