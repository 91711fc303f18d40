package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

const testIssuer = "https://issuer.test"

// tokenServer answers the authorization-code exchange with extra fields
// merged into the token response.
func tokenServer(t *testing.T, extra map[string]any, api http.Handler) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		body := map[string]any{"access_token": "provider-access", "token_type": "Bearer", "expires_in": 3600}
		for k, v := range extra {
			body[k] = v
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	if api != nil {
		mux.Handle("/", api)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func oauthConfig(srv *httptest.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.test/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	base := jwt.MapClaims{
		"iss": testIssuer,
		"aud": "client-id",
		"sub": "google-user-1",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, base).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestGoogleIdentifier_Identify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}

	newGoogle := func(t *testing.T, idToken string) *GoogleIdentifier {
		srv := tokenServer(t, map[string]any{"id_token": idToken}, nil)
		return &GoogleIdentifier{
			OAuth:    oauthConfig(srv),
			Verifier: oidc.NewVerifier(testIssuer, keys, &oidc.Config{ClientID: "client-id"}),
		}
	}

	t.Run("verified email", func(t *testing.T) {
		g := newGoogle(t, signIDToken(t, key, jwt.MapClaims{
			"email":          "Grace@Example.com",
			"email_verified": true,
			"name":           "Grace Hopper",
			"picture":        "https://img.test/grace.png",
		}))
		require.Equal(t, domain.ProviderGoogle, g.Provider())
		require.Contains(t, g.AuthCodeURL("xyz"), "state=xyz")

		id, err := g.Identify(ctx, Credentials{Code: "good-code"})
		require.NoError(t, err)
		require.Equal(t, "grace@example.com", id.Email)
		require.Equal(t, "Grace Hopper", id.Name)
		require.Equal(t, "https://img.test/grace.png", id.AvatarURL)
	})

	t.Run("unverified email", func(t *testing.T) {
		g := newGoogle(t, signIDToken(t, key, jwt.MapClaims{"email": "grace@example.com", "email_verified": false}))
		_, err := g.Identify(ctx, Credentials{Code: "good-code"})
		require.ErrorIs(t, err, ErrNoVerifiedEmail)
	})

	t.Run("wrong audience", func(t *testing.T) {
		g := newGoogle(t, signIDToken(t, key, jwt.MapClaims{"aud": "someone-else", "email": "grace@example.com", "email_verified": true}))
		_, err := g.Identify(ctx, Credentials{Code: "good-code"})
		require.Error(t, err)
	})

	t.Run("foreign key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		g := newGoogle(t, signIDToken(t, other, jwt.MapClaims{"email": "grace@example.com", "email_verified": true}))
		_, err = g.Identify(ctx, Credentials{Code: "good-code"})
		require.Error(t, err)
	})

	t.Run("bad code", func(t *testing.T) {
		g := newGoogle(t, "unused")
		_, err := g.Identify(ctx, Credentials{Code: "stolen"})
		require.Error(t, err)
		_, err = g.Identify(ctx, Credentials{})
		require.Error(t, err)
	})
}

func TestGitHubIdentifier_Identify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newGitHub := func(t *testing.T, user string, emails string) *GitHubIdentifier {
		api := http.NewServeMux()
		api.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer provider-access", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(user))
		})
		api.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(emails))
		})
		srv := tokenServer(t, nil, api)
		return &GitHubIdentifier{OAuth: oauthConfig(srv), APIBaseURL: srv.URL}
	}

	t.Run("primary verified", func(t *testing.T) {
		g := newGitHub(t,
			`{"login":"octocat","name":"","avatar_url":"https://img.test/octo.png"}`,
			`[{"email":"old@example.com","primary":false,"verified":true},{"email":"Octo@Example.com","primary":true,"verified":true}]`,
		)
		require.Equal(t, domain.ProviderGitHub, g.Provider())

		id, err := g.Identify(ctx, Credentials{Code: "good-code"})
		require.NoError(t, err)
		require.Equal(t, "octo@example.com", id.Email)
		require.Equal(t, "octocat", id.Name)
		require.Equal(t, "https://img.test/octo.png", id.AvatarURL)
	})

	t.Run("no verified email", func(t *testing.T) {
		g := newGitHub(t, `{"login":"octocat"}`, `[{"email":"octo@example.com","primary":true,"verified":false}]`)
		_, err := g.Identify(ctx, Credentials{Code: "good-code"})
		require.ErrorIs(t, err, ErrNoVerifiedEmail)
	})

	t.Run("api error", func(t *testing.T) {
		srv := tokenServer(t, nil, http.NotFoundHandler())
		g := &GitHubIdentifier{OAuth: oauthConfig(srv), APIBaseURL: srv.URL}
		_, err := g.Identify(ctx, Credentials{Code: "good-code"})
		require.ErrorContains(t, err, "status 404")
	})
}

func TestPickGitHubEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		emails []githubEmail
		want   string
	}{
		{"empty", nil, ""},
		{"primary verified wins", []githubEmail{{Email: "a", Verified: true}, {Email: "b", Primary: true, Verified: true}}, "b"},
		{"falls back to verified", []githubEmail{{Email: "a", Primary: true}, {Email: "b", Verified: true}}, "b"},
		{"none verified", []githubEmail{{Email: "a", Primary: true}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, pickGitHubEmail(tt.emails))
		})
	}
}
