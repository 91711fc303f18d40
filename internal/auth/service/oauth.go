package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

const (
	// GoogleIssuer is Google's OIDC discovery root.
	GoogleIssuer = "https://accounts.google.com"

	// GitHubAPIURL is the REST API used to read the signed-in profile.
	GitHubAPIURL = "https://api.github.com"
)

// OAuthConfig is the client registration for one provider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether the provider has been configured.
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// OAuthProvider is an Identifier that signs in through a browser redirect.
type OAuthProvider interface {
	Identifier
	Provider() domain.Provider
	AuthCodeURL(state string) string
}

// GoogleIdentifier signs in with Google's OpenID Connect flow and trusts
// the email in the verified ID token.
type GoogleIdentifier struct {
	OAuth    *oauth2.Config
	Verifier *oidc.IDTokenVerifier
}

// NewGoogleIdentifier discovers Google's endpoints and keys.
func NewGoogleIdentifier(ctx context.Context, cfg OAuthConfig) (*GoogleIdentifier, error) {
	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover google oidc: %w", err)
	}

	return &GoogleIdentifier{
		OAuth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		Verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (g *GoogleIdentifier) Provider() domain.Provider { return domain.ProviderGoogle }

func (g *GoogleIdentifier) AuthCodeURL(state string) string {
	return g.OAuth.AuthCodeURL(state)
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (g *GoogleIdentifier) Identify(ctx context.Context, c Credentials) (Identity, error) {
	if c.Code == "" {
		return Identity{}, errors.New("google: missing authorization code")
	}

	tok, err := g.OAuth.Exchange(ctx, c.Code)
	if err != nil {
		return Identity{}, fmt.Errorf("google: exchange code: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return Identity{}, errors.New("google: missing id_token in response")
	}

	idToken, err := g.Verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("google: verify id token: %w", err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("google: parse claims: %w", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return Identity{}, ErrNoVerifiedEmail
	}

	return Identity{
		Provider:  domain.ProviderGoogle,
		Email:     domain.NormalizeEmail(claims.Email),
		Name:      claims.Name,
		AvatarURL: claims.Picture,
	}, nil
}

// GitHubIdentifier signs in with GitHub OAuth and reads the profile and
// primary verified email from the REST API.
type GitHubIdentifier struct {
	OAuth      *oauth2.Config
	APIBaseURL string
}

func NewGitHubIdentifier(cfg OAuthConfig) *GitHubIdentifier {
	return &GitHubIdentifier{
		OAuth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"user:email"},
		},
		APIBaseURL: GitHubAPIURL,
	}
}

func (g *GitHubIdentifier) Provider() domain.Provider { return domain.ProviderGitHub }

func (g *GitHubIdentifier) AuthCodeURL(state string) string {
	return g.OAuth.AuthCodeURL(state)
}

type githubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHubIdentifier) Identify(ctx context.Context, c Credentials) (Identity, error) {
	if c.Code == "" {
		return Identity{}, errors.New("github: missing authorization code")
	}

	tok, err := g.OAuth.Exchange(ctx, c.Code)
	if err != nil {
		return Identity{}, fmt.Errorf("github: exchange code: %w", err)
	}
	client := g.OAuth.Client(ctx, tok)

	var user githubUser
	if err := g.getJSON(ctx, client, "/user", &user); err != nil {
		return Identity{}, err
	}

	var emails []githubEmail
	if err := g.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return Identity{}, err
	}
	email := pickGitHubEmail(emails)
	if email == "" {
		return Identity{}, ErrNoVerifiedEmail
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return Identity{
		Provider:  domain.ProviderGitHub,
		Email:     domain.NormalizeEmail(email),
		Name:      name,
		AvatarURL: user.AvatarURL,
	}, nil
}

func (g *GitHubIdentifier) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(g.APIBaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github: get %s: status %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("github: decode %s: %w", path, err)
	}
	return nil
}

// pickGitHubEmail prefers the primary verified address, then any verified
// one.
func pickGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}
