package mail_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatehouse/internal/auth/mail"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     mail.Message
		subject string
		want    string
	}{
		{
			name:    "otp",
			msg:     mail.Message{To: "a@example.com", Template: mail.TemplateOTP, Code: "123456", ExpiresIn: time.Minute},
			subject: "Your One-Time Passcode",
			want:    "123456",
		},
		{
			name:    "magic link",
			msg:     mail.Message{To: "a@example.com", Template: mail.TemplateMagicLink, URL: "https://app.test/auth/magic-link/verify?token=abc", ExpiresIn: time.Hour},
			subject: "Your Magic Link",
			want:    "https://app.test/auth/magic-link/verify?token=abc",
		},
		{
			name:    "email verification",
			msg:     mail.Message{To: "a@example.com", Template: mail.TemplateEmailVerification, URL: "https://app.test/auth/verify-email?token=abc"},
			subject: "Verify Your Email Address",
			want:    "https://app.test/auth/verify-email?token=abc",
		},
		{
			name:    "reset password",
			msg:     mail.Message{To: "a@example.com", Template: mail.TemplateResetPassword, URL: "https://app.test/auth/reset-password?token=abc"},
			subject: "Reset Your Password",
			want:    "https://app.test/auth/reset-password?token=abc",
		},
		{
			name:    "welcome",
			msg:     mail.Message{To: "a@example.com", Template: mail.TemplateWelcome, URL: "https://app.test/welcome"},
			subject: "Welcome to Gatehouse!",
			want:    "https://app.test/welcome",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, err := mail.Render(tt.msg)
			require.NoError(t, err)
			require.Equal(t, "a@example.com", e.To)
			require.Equal(t, tt.subject, e.Subject)
			require.Contains(t, e.Text, tt.want)
			require.Contains(t, e.HTML, "a@example.com")
		})
	}

	t.Run("expiry is humanised", func(t *testing.T) {
		t.Parallel()

		e, err := mail.Render(mail.Message{To: "a@example.com", Template: mail.TemplateOTP, Code: "1", ExpiresIn: time.Minute})
		require.NoError(t, err)
		require.Contains(t, e.Text, "expires in 1 minute.")
	})

	t.Run("unknown template", func(t *testing.T) {
		t.Parallel()

		_, err := mail.Render(mail.Message{To: "a@example.com", Template: "nope"})
		require.Error(t, err)
	})
}

type recordingSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []mail.Email
}

func (s *recordingSender) Send(_ context.Context, e mail.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("relay down")
	}
	s.sent = append(s.sent, e)
	return nil
}

func (s *recordingSender) snapshot() (int, []mail.Email) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]mail.Email(nil), s.sent...)
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{failures: 1}
	d := mail.NewDispatcher(sender, slogx.Discard(), mail.DispatcherConfig{
		Workers:      1,
		QueueSize:    4,
		MaxAttempts:  3,
		RetryInitial: time.Millisecond,
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Enqueue(context.Background(), mail.Message{
			To: "a@example.com", Template: mail.TemplateOTP, Code: "000000",
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain")
	}

	calls, sent := sender.snapshot()
	require.Len(t, sent, 3)
	require.Equal(t, 4, calls)

	err := d.Enqueue(context.Background(), mail.Message{To: "a@example.com", Template: mail.TemplateOTP})
	require.ErrorIs(t, err, mail.ErrClosed)
}

func TestDispatcher_GivesUp(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{failures: 10}
	d := mail.NewDispatcher(sender, slogx.Discard(), mail.DispatcherConfig{
		Workers:      1,
		MaxAttempts:  2,
		RetryInitial: time.Millisecond,
	})
	require.NoError(t, d.Enqueue(context.Background(), mail.Message{To: "a@example.com", Template: mail.TemplateOTP}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	calls, sent := sender.snapshot()
	require.Equal(t, 2, calls)
	require.Empty(t, sent)
}

func TestDispatcher_QueueFull(t *testing.T) {
	t.Parallel()

	d := mail.NewDispatcher(&recordingSender{}, slogx.Discard(), mail.DispatcherConfig{QueueSize: 1})
	msg := mail.Message{To: "a@example.com", Template: mail.TemplateOTP}

	require.NoError(t, d.Enqueue(context.Background(), msg))
	require.ErrorIs(t, d.Enqueue(context.Background(), msg), mail.ErrQueueFull)
}
