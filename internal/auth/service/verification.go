package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/mail"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// Front-end pages that emailed links point at.
const (
	MagicLinkPath         = "/auth/magic-link/verify"
	EmailVerificationPath = "/auth/verify-email"
	ResetPasswordPath     = "/auth/reset-password"
	WelcomePath           = "/welcome"
)

const msgNoUser = "No user found with this email"

// purposeText names a purpose in user-facing messages.
var purposeText = map[domain.Purpose]string{
	domain.PurposeOTP:               "OTP",
	domain.PurposeMagicLink:         "magic link",
	domain.PurposeEmailVerification: "email verification",
	domain.PurposePasswordReset:     "password reset",
}

var purposeMail = map[domain.Purpose]struct {
	template mail.Template
	path     string
}{
	domain.PurposeOTP:               {template: mail.TemplateOTP},
	domain.PurposeMagicLink:         {template: mail.TemplateMagicLink, path: MagicLinkPath},
	domain.PurposeEmailVerification: {template: mail.TemplateEmailVerification, path: EmailVerificationPath},
	domain.PurposePasswordReset:     {template: mail.TemplateResetPassword, path: ResetPasswordPath},
}

// RequestOTP emails a one-time passcode.
func (s *AuthService) RequestOTP(ctx context.Context, email string) error {
	return s.requestSecret(ctx, email, domain.PurposeOTP, nil)
}

// RequestMagicLink emails a single-use sign-in link.
func (s *AuthService) RequestMagicLink(ctx context.Context, email string) error {
	return s.requestSecret(ctx, email, domain.PurposeMagicLink, nil)
}

// RequestEmailVerification emails a verification link to an unverified
// user.
func (s *AuthService) RequestEmailVerification(ctx context.Context, email string) error {
	return s.requestSecret(ctx, email, domain.PurposeEmailVerification, func(u domain.User) error {
		if u.Verified() {
			return authsdk.BadRequest("Email already verified")
		}
		return nil
	})
}

// RequestPasswordReset emails a password reset link.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.requestSecret(ctx, email, domain.PurposePasswordReset, nil)
}

// requestSecret replaces the live secret for (email, purpose) and mails
// the raw value. The old secret stops working as soon as the upsert lands.
func (s *AuthService) requestSecret(ctx context.Context, email string, purpose domain.Purpose, check func(domain.User) error) error {
	l := slogx.FromContext(ctx)
	email = domain.NormalizeEmail(email)

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return authsdk.NotFound(msgNoUser)
	}
	if err != nil {
		return authsdk.Internal(err)
	}
	if check != nil {
		if err := check(u); err != nil {
			return err
		}
	}

	now := s.Clock.now()
	secret, err := s.Secrets.Generate(purpose, now)
	if err != nil {
		return authsdk.Internal(err)
	}

	err = s.Store.VerificationTokens().UpsertToken(ctx, domain.VerificationToken{
		ID:         idx.NewAt(now).String(),
		Email:      email,
		Purpose:    purpose,
		SecretHash: secret.Hash,
		ExpiresAt:  secret.ExpiresAt,
		CreatedAt:  now,
	})
	if err != nil {
		return authsdk.Internal(fmt.Errorf("store %s secret: %w", purpose, err))
	}

	if err := s.Mailer.Enqueue(ctx, s.message(email, purpose, secret.Raw)); err != nil {
		return authsdk.Internal(fmt.Errorf("enqueue %s email: %w", purpose, err))
	}

	s.Metrics.secretIssued(string(purpose))
	l.Info("verification secret issued", slog.String("user_id", u.ID), slog.String("purpose", string(purpose)))
	return nil
}

func (s *AuthService) message(email string, purpose domain.Purpose, raw string) mail.Message {
	pm := purposeMail[purpose]
	m := mail.Message{
		To:        email,
		Template:  pm.template,
		ExpiresIn: s.Secrets.TTL(purpose),
	}
	if purpose == domain.PurposeOTP {
		m.Code = raw
		return m
	}
	m.URL = strings.TrimRight(s.ClientURL, "/") + pm.path + "?token=" + url.QueryEscape(raw)
	return m
}

// VerifyOTP redeems an OTP. A correct code also proves the mailbox, so the
// user is marked verified.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (domain.SafeUser, error) {
	return s.redeem(ctx, email, domain.PurposeOTP, code, signInEffect)
}

// VerifyMagicLink redeems a magic link token.
func (s *AuthService) VerifyMagicLink(ctx context.Context, email, token string) (domain.SafeUser, error) {
	return s.redeem(ctx, email, domain.PurposeMagicLink, token, signInEffect)
}

// VerifyEmail redeems an email verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, email, token string) (domain.SafeUser, error) {
	return s.redeem(ctx, email, domain.PurposeEmailVerification, token,
		func(ctx context.Context, tx store.Tx, u *domain.User, now time.Time) error {
			return markVerified(ctx, tx, u, now)
		})
}

// ResetPassword redeems a password reset token and sets newPassword.
func (s *AuthService) ResetPassword(ctx context.Context, email, token, newPassword string) (domain.SafeUser, error) {
	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return domain.SafeUser{}, authsdk.Internal(fmt.Errorf("hash password: %w", err))
	}
	return s.redeem(ctx, email, domain.PurposePasswordReset, token,
		func(ctx context.Context, tx store.Tx, u *domain.User, now time.Time) error {
			if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
				return err
			}
			// OAuth-only users gain a credentials link the first time they
			// set a password.
			err := tx.Accounts().CreateAccount(ctx, domain.Account{
				ID:        idx.NewAt(now).String(),
				UserID:    u.ID,
				Provider:  domain.ProviderCredentials,
				Type:      domain.AccountCredentials,
				CreatedAt: now,
			})
			if errors.Is(err, store.ErrAlreadyExists) {
				return nil
			}
			return err
		})
}

type redeemEffect func(ctx context.Context, tx store.Tx, u *domain.User, now time.Time) error

func signInEffect(ctx context.Context, tx store.Tx, u *domain.User, now time.Time) error {
	if err := tx.Users().TouchLastLogin(ctx, u.ID, now); err != nil {
		return err
	}
	u.LastLoginAt = &now
	return markVerified(ctx, tx, u, now)
}

func markVerified(ctx context.Context, tx store.Tx, u *domain.User, now time.Time) error {
	if u.Verified() {
		return nil
	}
	if err := tx.Users().MarkVerified(ctx, u.ID, now); err != nil {
		return err
	}
	u.VerifiedAt = &now
	return nil
}

// redeem checks raw against the live secret for (email, purpose), applies
// effect and deletes the secret, all in one transaction. The delete only
// matches the row that was checked, so of two concurrent redemptions only
// one commits; the other sees NotFound.
func (s *AuthService) redeem(ctx context.Context, email string, purpose domain.Purpose, raw string, effect redeemEffect) (domain.SafeUser, error) {
	email = domain.NormalizeEmail(email)
	what := purposeText[purpose]
	now := s.Clock.now()

	var safe domain.SafeUser
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		tok, err := tx.VerificationTokens().GetToken(ctx, email, purpose)
		if errors.Is(err, store.ErrNotFound) {
			return authsdk.NotFound(fmt.Sprintf("No %s token found for this email", what))
		}
		if err != nil {
			return err
		}

		if tok.Expired(now) {
			return authsdk.BadRequest(capitalize(what)+" token has expired", authsdk.WithCode(authsdk.CodeTokenExpired))
		}
		if !s.Secrets.Verify(raw, tok.SecretHash) {
			return authsdk.BadRequest("Invalid "+what+" token", authsdk.WithCode(authsdk.CodeTokenInvalid))
		}

		u, err := tx.Users().GetUserByEmail(ctx, email)
		if errors.Is(err, store.ErrNotFound) {
			return authsdk.NotFound(msgNoUser)
		}
		if err != nil {
			return err
		}

		if err := effect(ctx, tx, &u, now); err != nil {
			return err
		}

		if err := tx.VerificationTokens().ConsumeToken(ctx, tok.ID, tok.SecretHash); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return authsdk.NotFound(fmt.Sprintf("No %s token found for this email", what))
			}
			return err
		}

		safe, err = loadSafeUser(ctx, tx, u)
		return err
	})
	if err != nil {
		e := authsdk.As(err)
		s.Metrics.secretRedeemed(string(purpose), e.Code)
		return domain.SafeUser{}, e
	}

	s.Metrics.secretRedeemed(string(purpose), "ok")
	slogx.FromContext(ctx).Info("verification secret redeemed",
		slog.String("user_id", safe.ID),
		slog.String("purpose", string(purpose)),
	)
	return safe, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
