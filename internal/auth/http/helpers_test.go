package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aussiebroadwan/gatehouse/internal/auth/cache"
	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/mail"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const testPassword = "correct horse battery"

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *fakeMailer) Enqueue(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last(t *testing.T, to string) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i]
		}
	}
	t.Fatalf("no email sent to %s", to)
	return mail.Message{}
}

func (m *fakeMailer) token(t *testing.T, to string) string {
	t.Helper()
	u, err := url.Parse(m.last(t, to).URL)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

// fakeProvider accepts the code "good" and reports a fixed identity.
type fakeProvider struct {
	provider domain.Provider
	email    string
}

func (p fakeProvider) Provider() domain.Provider { return p.provider }

func (p fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (p fakeProvider) Identify(_ context.Context, c service.Credentials) (service.Identity, error) {
	if c.Code != "good" {
		return service.Identity{}, errors.New("exchange failed")
	}
	return service.Identity{Provider: p.provider, Email: p.email, Name: "Grace Hopper"}, nil
}

type fixture struct {
	srv    *httptest.Server
	router *Router
	store  *sqlite.Store
	redis  *miniredis.Miniredis
	mailer *fakeMailer
}

type fixtureConfig struct {
	binding CSRFBinding
	opts    Options
}

type fixtureOption func(*fixtureConfig)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	mr := miniredis.RunT(t)
	c := cache.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	mailer := &fakeMailer{}
	hasher := cryptox.NewPasswordHasher("test-pepper")
	throttle := &service.Throttle{Cache: c, Max: 3, Window: 15 * time.Minute}

	pem, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("test", pem)
	require.NoError(t, err)

	sessions := &service.SessionService{
		Signer:   signer,
		Verifier: jwtx.NewVerifier(signer, jwtx.VerifyOptions{Issuer: "gatehouse-test"}),
		Ledger:   &service.RevocationLedger{Store: st},
		Store:    st,
		Issuer:   "gatehouse-test",
		Metrics:  metrics,
	}
	auth := &service.AuthService{
		Store:    st,
		Secrets:  &service.Secrets{Cost: bcrypt.MinCost},
		Hasher:   hasher,
		Mailer:   mailer,
		Throttle: throttle,
		Password: &service.PasswordIdentifier{Store: st, Hasher: hasher},
		OAuth: map[domain.Provider]service.OAuthProvider{
			domain.ProviderGoogle: fakeProvider{provider: domain.ProviderGoogle, email: "grace@example.com"},
		},
		ClientURL: "https://app.test",
		Metrics:   metrics,
	}

	cfg := fixtureConfig{
		binding: CSRFBindCookie,
		opts:    Options{AllowedOrigins: []string{"https://app.test"}, TrustProxy: true},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := NewRouter("test", slogx.Discard(), cfg.opts)
	r.Auth = auth
	r.Sessions = sessions
	r.CSRF = &service.CSRFGuard{Cache: c}
	r.Throttle = throttle
	r.Ready = map[string]Pinger{"database": st, "cache": c}
	r.Gatherer = reg
	r.CSRFBinding = cfg.binding
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, router: r, store: st, redis: mr, mailer: mailer}
}

func withCSRFBinding(b CSRFBinding) fixtureOption {
	return func(c *fixtureConfig) { c.binding = b }
}

func withRateLimit(n int) fixtureOption {
	return func(c *fixtureConfig) {
		c.opts.RateLimit.RequestsPerWindow = n
		c.opts.RateLimit.Window = time.Minute
	}
}

func withoutProxy() fixtureOption {
	return func(c *fixtureConfig) { c.opts.TrustProxy = false }
}

func withRequestTimeout(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.opts.RequestTimeout = d }
}

func (f *fixture) client(ip string) *authsdk.SDKClient {
	c := authsdk.NewSDKClient(f.srv.URL)
	c.ForwardedFor = ip
	return c
}

// signUpVerified registers email and redeems its verification link.
func (f *fixture) signUpVerified(t *testing.T, c *authsdk.SDKClient, email string) {
	t.Helper()
	ctx := context.Background()

	_, err := c.SignUp(ctx, authsdk.SignUpRequest{
		Name:            "Ada Lovelace",
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	require.NoError(t, err)
	require.NoError(t, c.VerifyEmail(ctx, email, f.mailer.token(t, email)))
}

func requireAPIError(t *testing.T, err error, status int, code string) *authsdk.Error {
	t.Helper()
	var e *authsdk.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, status, e.Status)
	if code != "" {
		require.Equal(t, code, e.Code)
	}
	return e
}
