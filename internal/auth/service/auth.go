package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/mail"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const msgInvalidCredentials = "Invalid email or password"

// AuthService runs every sign-up, sign-in and verification flow. It never
// touches cookies or tokens; callers mint sessions from the returned user.
type AuthService struct {
	Store    store.Store
	Secrets  *Secrets
	Hasher   *cryptox.PasswordHasher
	Mailer   Mailer
	Throttle *Throttle

	// Captcha may be nil, which turns off CAPTCHA escalation.
	Captcha CaptchaVerifier

	Password Identifier
	OAuth    map[domain.Provider]OAuthProvider

	// ClientURL is the front-end origin used to build emailed links.
	ClientURL string

	Metrics *Metrics
	Clock   Clock
}

type SignUpInput struct {
	Name     string
	Email    string
	Password string
}

type SignInInput struct {
	Email        string
	Password     string
	CaptchaToken string
}

// SignUp creates a credentials user with a profile, then emails a
// verification link.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (domain.SafeUser, error) {
	l := slogx.FromContext(ctx)
	email := domain.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.SafeUser{}, authsdk.Internal(fmt.Errorf("hash password: %w", err))
	}

	now := s.Clock.now()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		LastLoginAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var safe domain.SafeUser
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := createUser(ctx, tx, u, domain.ProviderCredentials, domain.AccountCredentials, name, InitialsAvatar(name)); err != nil {
			return err
		}
		safe, err = loadSafeUser(ctx, tx, u)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.SafeUser{}, authsdk.Conflict("Email already in use")
		}
		return domain.SafeUser{}, authsdk.As(err)
	}
	l.Info("user signed up", slog.String("user_id", u.ID))
	s.sendWelcome(ctx, u)

	if err := s.RequestEmailVerification(ctx, email); err != nil {
		l.Error("send verification email after sign-up", slog.String("user_id", u.ID), slog.Any("error", err))
	}
	return safe, nil
}

// createUser writes a user, its first account link and its profile. It
// must run inside a transaction.
func createUser(ctx context.Context, tx store.Tx, u domain.User, provider domain.Provider, typ domain.AccountType, name, avatar string) error {
	if err := tx.Users().CreateUser(ctx, u); err != nil {
		return err
	}
	if err := tx.Accounts().CreateAccount(ctx, domain.Account{
		ID:        idx.NewAt(u.CreatedAt).String(),
		UserID:    u.ID,
		Provider:  provider,
		Type:      typ,
		CreatedAt: u.CreatedAt,
	}); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if err := tx.Profiles().CreateProfile(ctx, domain.Profile{
		UserID:    u.ID,
		Name:      name,
		AvatarURL: avatar,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.CreatedAt,
	}); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// sendWelcome greets a newly created user. The user row is already
// committed, so a mail failure is only logged.
func (s *AuthService) sendWelcome(ctx context.Context, u domain.User) {
	err := s.Mailer.Enqueue(ctx, mail.Message{
		To:       u.Email,
		Template: mail.TemplateWelcome,
		URL:      strings.TrimRight(s.ClientURL, "/") + WelcomePath,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("send welcome email", slog.String("user_id", u.ID), slog.Any("error", err))
	}
}

// SignIn checks credentials for a client at ip. Failures increment the
// throttle counter; once it passes the CAPTCHA threshold a solved CAPTCHA
// is required before credentials are even looked at.
func (s *AuthService) SignIn(ctx context.Context, in SignInInput, ip string) (domain.SafeUser, error) {
	l := slogx.FromContext(ctx)

	attempts, err := s.Throttle.Check(ctx, ip)
	if err != nil {
		s.Metrics.signInFailed(ReasonLockedOut)
		return domain.SafeUser{}, err
	}

	if s.Captcha != nil && s.Throttle.RequiresCaptcha(attempts) {
		details := authsdk.WithDetails(map[string]any{"requireCaptcha": true})
		if in.CaptchaToken == "" {
			return domain.SafeUser{}, s.rejectSignIn(ctx, ip, ReasonCaptchaMissing,
				authsdk.BadRequest("Captcha token is required", details))
		}
		ok, err := s.Captcha.Verify(ctx, in.CaptchaToken, ip)
		if err != nil {
			l.Warn("captcha verification failed", slog.Any("error", err))
		}
		if !ok {
			return domain.SafeUser{}, s.rejectSignIn(ctx, ip, ReasonCaptchaFailed,
				authsdk.BadRequest("Invalid captcha token", details))
		}
	}

	id, err := s.Password.Identify(ctx, Credentials{Email: in.Email, Password: in.Password})
	switch {
	case errors.Is(err, ErrUnknownEmail):
		return domain.SafeUser{}, s.rejectSignIn(ctx, ip, ReasonUnknownEmail, authsdk.BadRequest(msgInvalidCredentials))
	case errors.Is(err, ErrNoPassword):
		return domain.SafeUser{}, s.rejectSignIn(ctx, ip, ReasonNoPassword, authsdk.BadRequest(msgInvalidCredentials))
	case errors.Is(err, ErrBadPassword):
		return domain.SafeUser{}, s.rejectSignIn(ctx, ip, ReasonBadPassword, authsdk.BadRequest(msgInvalidCredentials))
	case err != nil:
		return domain.SafeUser{}, authsdk.Internal(err)
	}
	u := *id.User

	if !u.Verified() {
		s.Metrics.signInFailed(ReasonUnverified)
		if err := s.RequestEmailVerification(ctx, u.Email); err != nil {
			l.Error("resend verification email", slog.String("user_id", u.ID), slog.Any("error", err))
		}
		return domain.SafeUser{}, authsdk.BadRequest("Email not verified, please check your inbox for the verification email")
	}

	if err := s.Throttle.Reset(ctx, ip); err != nil {
		l.Warn("reset sign-in attempts", slog.Any("error", err))
	}

	now := s.Clock.now()
	if err := s.Store.Users().TouchLastLogin(ctx, u.ID, now); err != nil {
		return domain.SafeUser{}, authsdk.Internal(err)
	}
	u.LastLoginAt = &now

	safe, err := loadSafeUser(ctx, s.Store, u)
	if err != nil {
		return domain.SafeUser{}, authsdk.Internal(err)
	}
	s.Metrics.signedIn(string(domain.ProviderCredentials))
	l.Info("user signed in", slog.String("user_id", u.ID))
	return safe, nil
}

func (s *AuthService) rejectSignIn(ctx context.Context, ip, reason string, e *authsdk.Error) error {
	l := slogx.FromContext(ctx)
	if _, err := s.Throttle.Increment(ctx, ip); err != nil {
		l.Warn("increment sign-in attempts", slog.Any("error", err))
	}
	s.Metrics.signInFailed(reason)
	l.Debug("sign-in rejected", slog.String("reason", reason), slog.String("ip", ip))
	return e
}

// OAuthProvider returns the configured provider, if any.
func (s *AuthService) OAuthProvider(p domain.Provider) (OAuthProvider, bool) {
	op, ok := s.OAuth[p]
	return op, ok && op != nil
}

// SignInWithOAuth exchanges code with provider and signs in the matching
// user, creating one on first sight. Provider-asserted emails are treated
// as verified.
func (s *AuthService) SignInWithOAuth(ctx context.Context, provider domain.Provider, code string) (domain.SafeUser, error) {
	l := slogx.FromContext(ctx)

	op, ok := s.OAuthProvider(provider)
	if !ok {
		return domain.SafeUser{}, authsdk.NotFound("OAuth provider not configured")
	}

	id, err := op.Identify(ctx, Credentials{Code: code})
	if err != nil {
		l.Warn("oauth identification failed", slog.String("provider", string(provider)), slog.Any("error", err))
		return domain.SafeUser{}, authsdk.Unauthorized("OAuth sign-in failed", authsdk.WithCause(err))
	}

	now := s.Clock.now()
	u, err := s.Store.Users().GetUserByEmail(ctx, id.Email)
	switch {
	case err == nil:
		safe, err := s.linkOAuth(ctx, u, provider, now)
		if err != nil {
			return domain.SafeUser{}, authsdk.As(err)
		}
		s.Metrics.signedIn(string(provider))
		return safe, nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.SafeUser{}, authsdk.Internal(err)
	}

	u = domain.User{
		ID:          idx.NewAt(now).String(),
		Email:       id.Email,
		Role:        domain.RoleUser,
		VerifiedAt:  &now,
		LastLoginAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	name := id.Name
	if name == "" {
		name, _, _ = strings.Cut(id.Email, "@")
	}
	avatar := id.AvatarURL
	if avatar == "" {
		avatar = InitialsAvatar(name)
	}

	var safe domain.SafeUser
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := createUser(ctx, tx, u, provider, domain.AccountOAuth, name, avatar); err != nil {
			return err
		}
		safe, err = loadSafeUser(ctx, tx, u)
		return err
	})
	created := err == nil
	if errors.Is(err, store.ErrAlreadyExists) {
		// Another callback for the same email created the user first.
		existing, gerr := s.Store.Users().GetUserByEmail(ctx, id.Email)
		if gerr != nil {
			return domain.SafeUser{}, authsdk.Internal(gerr)
		}
		safe, err = s.linkOAuth(ctx, existing, provider, now)
	}
	if err != nil {
		return domain.SafeUser{}, authsdk.As(err)
	}
	if created {
		s.sendWelcome(ctx, u)
	}

	s.Metrics.signedIn(string(provider))
	l.Info("user signed in with oauth", slog.String("user_id", safe.ID), slog.String("provider", string(provider)))
	return safe, nil
}

// linkOAuth signs in an existing user through provider, adding the
// account link when it is missing.
func (s *AuthService) linkOAuth(ctx context.Context, u domain.User, provider domain.Provider, now time.Time) (domain.SafeUser, error) {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().TouchLastLogin(ctx, u.ID, now); err != nil {
			return err
		}
		if !u.Verified() {
			if err := tx.Users().MarkVerified(ctx, u.ID, now); err != nil {
				return err
			}
		}
		err := tx.Accounts().CreateAccount(ctx, domain.Account{
			ID:        idx.NewAt(now).String(),
			UserID:    u.ID,
			Provider:  provider,
			Type:      domain.AccountOAuth,
			CreatedAt: now,
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return err
	})
	if err != nil {
		return domain.SafeUser{}, authsdk.Internal(err)
	}

	u.LastLoginAt = &now
	safe, err := loadSafeUser(ctx, s.Store, u)
	if err != nil {
		return domain.SafeUser{}, authsdk.Internal(err)
	}
	return safe, nil
}

// Me returns the signed-in user's outward view.
func (s *AuthService) Me(ctx context.Context, userID string) (domain.SafeUser, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SafeUser{}, authsdk.NotFound("User not found")
	}
	if err != nil {
		return domain.SafeUser{}, authsdk.Internal(err)
	}
	safe, err := loadSafeUser(ctx, s.Store, u)
	if err != nil {
		return domain.SafeUser{}, authsdk.Internal(err)
	}
	return safe, nil
}

// loadSafeUser sanitises u and attaches its profile and linked providers.
func loadSafeUser(ctx context.Context, st store.Store, u domain.User) (domain.SafeUser, error) {
	safe := u.Sanitize()

	p, err := st.Profiles().GetProfile(ctx, u.ID)
	switch {
	case err == nil:
		safe.Profile = &p
	case !errors.Is(err, store.ErrNotFound):
		return domain.SafeUser{}, fmt.Errorf("load profile: %w", err)
	}

	accounts, err := st.Accounts().ListAccounts(ctx, u.ID)
	if err != nil {
		return domain.SafeUser{}, fmt.Errorf("load accounts: %w", err)
	}
	for _, a := range accounts {
		safe.Providers = append(safe.Providers, a.Provider)
	}
	return safe, nil
}
