package service

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aussiebroadwan/gatehouse/internal/auth/cache"
	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/mail"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

const testPassword = "correct horse battery"

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newFileStore opens a database file in a temp dir. Unlike :memory:, it
// lets transactions run on separate connections.
func newFileStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestCache(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := cache.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

// testClock is a settable clock shared by a fixture.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeMailer records everything enqueued.
type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Enqueue(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

// last returns the most recent message to addr.
func (m *fakeMailer) last(t *testing.T, to string) mail.Message {
	t.Helper()
	msgs := m.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].To == to {
			return msgs[i]
		}
	}
	t.Fatalf("no email sent to %s", to)
	return mail.Message{}
}

// fakeCaptcha accepts exactly one token.
type fakeCaptcha struct {
	valid string
}

func (c fakeCaptcha) Verify(_ context.Context, token, _ string) (bool, error) {
	return token == c.valid, nil
}

type fixture struct {
	store    *sqlite.Store
	cache    *cache.Redis
	redis    *miniredis.Miniredis
	clock    *testClock
	mailer   *fakeMailer
	auth     *AuthService
	sessions *SessionService
	ledger   *RevocationLedger
	throttle *Throttle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, newTestStore(t))
}

// newFixtureOn builds a fixture over st, for tests that need a file
// database with real connection concurrency.
func newFixtureOn(t *testing.T, st *sqlite.Store) *fixture {
	t.Helper()

	c, mr := newTestCache(t)
	clock := newTestClock()
	mailer := &fakeMailer{}
	hasher := cryptox.NewPasswordHasher("test-pepper")

	throttle := &Throttle{Cache: c, Max: 5, Window: 15 * time.Minute, CaptchaThreshold: 3}
	ledger := &RevocationLedger{Store: st, Clock: clock.Now}

	pem, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("test", pem)
	require.NoError(t, err)

	sessions := &SessionService{
		Signer:     signer,
		Verifier:   jwtx.NewVerifier(signer, jwtx.VerifyOptions{Issuer: "gatehouse-test", Now: clock.Now}),
		Ledger:     ledger,
		Store:      st,
		Issuer:     "gatehouse-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Clock:      clock.Now,
	}

	auth := &AuthService{
		Store:     st,
		Secrets:   &Secrets{Cost: bcrypt.MinCost},
		Hasher:    hasher,
		Mailer:    mailer,
		Throttle:  throttle,
		Captcha:   fakeCaptcha{valid: "solved"},
		Password:  &PasswordIdentifier{Store: st, Hasher: hasher},
		OAuth:     map[domain.Provider]OAuthProvider{},
		ClientURL: "https://app.test",
		Clock:     clock.Now,
	}

	return &fixture{
		store:    st,
		cache:    c,
		redis:    mr,
		clock:    clock,
		mailer:   mailer,
		auth:     auth,
		sessions: sessions,
		ledger:   ledger,
		throttle: throttle,
	}
}

// signUpVerified creates a user and redeems its verification email.
func (f *fixture) signUpVerified(t *testing.T, email string) domain.SafeUser {
	t.Helper()
	ctx := context.Background()

	u, err := f.auth.SignUp(ctx, SignUpInput{Name: "Ada Lovelace", Email: email, Password: testPassword})
	require.NoError(t, err)

	token := tokenFromURL(t, f.mailer.last(t, email).URL)
	_, err = f.auth.VerifyEmail(ctx, email, token)
	require.NoError(t, err)
	return u
}

func tokenFromURL(t *testing.T, link string) string {
	t.Helper()

	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}
