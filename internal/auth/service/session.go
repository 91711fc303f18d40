package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// SessionService mints, verifies and rotates session token pairs.
type SessionService struct {
	Signer     jwtx.Signer
	Verifier   *jwtx.Verifier
	Ledger     *RevocationLedger
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      Clock
	Metrics    *Metrics
}

func (s *SessionService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *SessionService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// Issue mints a fresh access/refresh pair for userID.
func (s *SessionService) Issue(ctx context.Context, userID string) (domain.Session, error) {
	now := s.Clock.now()

	access, accessExp, err := s.sign(userID, jwtx.TypeAccess, s.accessTTL(), now)
	if err != nil {
		return domain.Session{}, err
	}
	refresh, refreshExp, err := s.sign(userID, jwtx.TypeRefresh, s.refreshTTL(), now)
	if err != nil {
		return domain.Session{}, err
	}

	slogx.FromContext(ctx).Debug("session issued", slog.String("user_id", userID))
	return domain.Session{
		UserID:           userID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueAccess mints an access token only. OTP sign-in uses it.
func (s *SessionService) IssueAccess(_ context.Context, userID string) (domain.Session, error) {
	now := s.Clock.now()
	access, exp, err := s.sign(userID, jwtx.TypeAccess, s.accessTTL(), now)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{UserID: userID, AccessToken: access, AccessExpiresAt: exp}, nil
}

func (s *SessionService) sign(userID string, typ jwtx.TokenType, ttl time.Duration, now time.Time) (string, time.Time, error) {
	claims := jwtx.NewSessionClaims(s.Issuer, userID, typ, ttl, now)
	tok, err := s.Signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return tok, claims.Expiry(), nil
}

// VerifyAccess validates an access token.
func (s *SessionService) VerifyAccess(raw string) (jwtx.Claims, error) {
	return s.Verifier.Verify(raw, jwtx.TypeAccess)
}

// VerifyRefresh validates a refresh token's signature, expiry and type. It
// does not consult the ledger.
func (s *SessionService) VerifyRefresh(raw string) (jwtx.Claims, error) {
	return s.Verifier.Verify(raw, jwtx.TypeRefresh)
}

// Refresh redeems a refresh token for a new pair. Each refresh token works
// once: it is written to the ledger before the new pair is minted, and a
// concurrent redemption of the same token loses on the ledger's unique key.
func (s *SessionService) Refresh(ctx context.Context, raw string) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	if raw == "" {
		return domain.Session{}, authsdk.Unauthorized("Refresh token not found")
	}

	claims, err := s.VerifyRefresh(raw)
	if err != nil {
		l.Debug("refresh token rejected", slog.Any("error", err))
		if errors.Is(err, jwtx.ErrExpired) {
			return domain.Session{}, authsdk.Unauthorized("Refresh token expired", authsdk.WithCode(authsdk.CodeTokenExpired))
		}
		return domain.Session{}, authsdk.Unauthorized("Invalid refresh token", authsdk.WithCode(authsdk.CodeTokenInvalid))
	}

	revoked, err := s.Ledger.IsRevoked(ctx, claims.ID, raw)
	if err != nil {
		return domain.Session{}, authsdk.Internal(err)
	}
	if revoked {
		l.Warn("revoked refresh token presented", slog.String("jti", claims.ID), slog.String("user_id", claims.Subject))
		s.Metrics.refreshRejected("revoked")
		return domain.Session{}, errRefreshRevoked()
	}

	err = s.Ledger.Revoke(ctx, claims.ID, raw, claims.Expiry(), domain.RevokeRotation)
	if err != nil {
		var ae *authsdk.Error
		if errors.As(err, &ae) && ae.Kind == authsdk.KindConflict {
			s.Metrics.refreshRejected("replayed")
			return domain.Session{}, errRefreshRevoked()
		}
		return domain.Session{}, authsdk.Internal(err)
	}

	if _, err := s.Store.Users().GetUserByID(ctx, claims.Subject); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, authsdk.Unauthorized("User not found")
		}
		return domain.Session{}, authsdk.Internal(err)
	}

	sess, err := s.Issue(ctx, claims.Subject)
	if err != nil {
		return domain.Session{}, authsdk.Internal(err)
	}
	s.Metrics.refreshed()
	return sess, nil
}

func errRefreshRevoked() error {
	return authsdk.Unauthorized("Refresh token has been revoked", authsdk.WithCode(authsdk.CodeTokenRevoked))
}

// Revoke retires a refresh token. Invalid or expired tokens are ignored
// since they can no longer be redeemed, and revoking twice is not an error.
func (s *SessionService) Revoke(ctx context.Context, raw, reason string) error {
	if raw == "" {
		return nil
	}
	claims, err := s.VerifyRefresh(raw)
	if err != nil {
		slogx.FromContext(ctx).Debug("skip revoking invalid refresh token", slog.Any("error", err))
		return nil
	}

	err = s.Ledger.Revoke(ctx, claims.ID, raw, claims.Expiry(), reason)
	var ae *authsdk.Error
	if errors.As(err, &ae) && ae.Kind == authsdk.KindConflict {
		return nil
	}
	if err != nil {
		return authsdk.Internal(err)
	}
	return nil
}
