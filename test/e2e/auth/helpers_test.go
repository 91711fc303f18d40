package auth_test

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/gatehouse/internal/auth/app"
	"github.com/aussiebroadwan/gatehouse/internal/auth/mail"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

/*
 * Common constants and helper functions for auth service end-to-end tests.
 * The service runs in-process against a real Redis started once per run.
 */

const (
	redisImage = "redis:7-alpine"
	clientURL  = "http://app.localhost:3000"

	testName     = "Ada Lovelace"
	testPassword = "correct horse battery"
)

var (
	// redisURL points at the shared container. Tests keep their keys apart
	// by posing as distinct client IPs.
	redisURL string

	ipCounter atomic.Uint32
)

// TestMain starts Redis once before all tests and terminates it afterwards.
// Without Docker the suite is skipped rather than failed.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Fprintln(os.Stdout, "Skipping end-to-end tests in short mode")
		os.Exit(0)
	}

	ctx := context.Background()
	fmt.Fprintf(os.Stdout, "Starting Redis container...")

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        redisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stdout, "\nSkipping end-to-end tests, Docker unavailable: %v\n", err)
		os.Exit(0)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to resolve Redis host: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to resolve Redis port: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}
	redisURL = fmt.Sprintf("redis://%s:%s/0", host, port.Port())
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Terminating Redis container...")
	_ = container.Terminate(ctx)
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

// mailbox is a mail.Sender that keeps every rendered email so tests can
// read the links and passcodes a user would receive.
type mailbox struct {
	mu   sync.Mutex
	sent []mail.Email
	read map[string]int
}

func newMailbox() *mailbox {
	return &mailbox{read: map[string]int{}}
}

func (b *mailbox) Send(_ context.Context, e mail.Email) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, e)
	return nil
}

// welcomeSubject marks the greeting sent on account creation. It carries no
// secret, so next skips it.
const welcomeSubject = "Welcome to Gatehouse!"

// next waits for the first unread email addressed to `to`, ignoring
// welcome emails.
func (b *mailbox) next(t *testing.T, to string) mail.Email {
	t.Helper()

	var got mail.Email
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		seen := 0
		for _, e := range b.sent {
			if e.To != to || e.Subject == welcomeSubject {
				continue
			}
			if seen == b.read[to] {
				b.read[to]++
				got = e
				return true
			}
			seen++
		}
		return false
	}, 5*time.Second, 20*time.Millisecond, "no email delivered to %s", to)
	return got
}

// welcomed waits for the welcome email addressed to `to`.
func (b *mailbox) welcomed(t *testing.T, to string) mail.Email {
	t.Helper()

	var got mail.Email
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, e := range b.sent {
			if e.To == to && e.Subject == welcomeSubject {
				got = e
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond, "no welcome email delivered to %s", to)
	return got
}

// linkToken returns the token query parameter of the link in the next email.
func (b *mailbox) linkToken(t *testing.T, to string) string {
	t.Helper()
	e := b.next(t, to)

	sc := bufio.NewScanner(strings.NewReader(e.Text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, clientURL) {
			continue
		}
		u, err := url.Parse(line)
		require.NoError(t, err)
		if tok := u.Query().Get("token"); tok != "" {
			return tok
		}
	}
	t.Fatalf("email %q to %s has no link", e.Subject, to)
	return ""
}

// passcode returns the one-time passcode in the next email.
func (b *mailbox) passcode(t *testing.T, to string) string {
	t.Helper()
	e := b.next(t, to)

	const prefix = "Your one-time passcode is: "
	for line := range strings.Lines(e.Text) {
		if code, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			return code
		}
	}
	t.Fatalf("email %q to %s has no passcode", e.Subject, to)
	return ""
}

type authService struct {
	baseURL string
	mail    *mailbox
}

// setupAuthService starts the auth service in-process and returns it with a
// cleanup that shuts it down. mutate adjusts the configuration before the
// service starts.
func setupAuthService(t *testing.T, mutate ...func(*app.Config)) (*authService, func()) {
	t.Helper()

	var cfg app.Config
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}))

	dir := t.TempDir()
	cfg.Env = "test"
	cfg.ClientURL = clientURL
	cfg.DatabaseFile = filepath.Join(dir, "auth.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.RedisURL = redisURL
	cfg.BcryptCost = 4
	// Clients are told apart by X-Forwarded-For
	cfg.TrustProxy = true
	// Tests make many rapid requests which would otherwise hit the global limit
	cfg.RateLimit = 0
	for _, fn := range mutate {
		fn(&cfg)
	}
	require.NoError(t, cfg.Validate())

	box := newMailbox()
	svc, err := app.New(t.Context(), cfg, app.WithLogger(slogx.Discard()), app.WithMailSender(box))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, ln) }()

	cleanup := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Logf("auth service stopped with error: %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Logf("auth service did not stop in time")
		}
	}

	return &authService{baseURL: "http://" + ln.Addr().String(), mail: box}, cleanup
}

// newClient returns an SDK client posing as a caller with its own address, so
// per-IP counters in the shared Redis never leak between tests.
func (s *authService) newClient() *authsdk.SDKClient {
	n := ipCounter.Add(1)
	client := authsdk.NewSDKClient(s.baseURL)
	client.ForwardedFor = fmt.Sprintf("10.%d.%d.%d", (n>>16)&0xff, (n>>8)&0xff, n&0xff)
	return client
}

// uniqueEmail returns an address no other test in this run uses.
func uniqueEmail(t *testing.T, prefix string) string {
	t.Helper()
	return fmt.Sprintf("%s-%d-%d@example.com", prefix, time.Now().UnixNano(), ipCounter.Add(1))
}

// signUpVerified registers email and follows the verification link.
func signUpVerified(t *testing.T, svc *authService, client *authsdk.SDKClient, email string) {
	t.Helper()
	ctx := context.Background()

	user, err := client.SignUp(ctx, authsdk.SignUpRequest{
		Name:            testName,
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	require.NoError(t, err, "Sign up should succeed")
	require.Equal(t, email, user.Email)

	require.NoError(t, client.VerifyEmail(ctx, email, svc.mail.linkToken(t, email)), "Email verification should succeed")
}

// signIn signs client in with the test password.
func signIn(t *testing.T, client *authsdk.SDKClient, email string) {
	t.Helper()
	err := client.SignIn(context.Background(), authsdk.SignInRequest{Email: email, Password: testPassword})
	require.NoError(t, err, "Sign in should succeed")
}

// assertAPIError checks that err is an API error with the given status and,
// when code is not empty, the given machine-readable code.
func assertAPIError(t *testing.T, err error, status int, code string, context string) *authsdk.Error {
	t.Helper()
	require.Error(t, err, context)
	apiErr := authsdk.As(err)
	require.NotNil(t, apiErr, "%s - expected an API error, got: %v", context, err)
	require.Equal(t, status, apiErr.Status, "%s - unexpected status: %v", context, err)
	if code != "" {
		require.Equal(t, code, apiErr.Code, "%s - unexpected code: %v", context, err)
	}
	return apiErr
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
