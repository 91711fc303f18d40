// Package mail renders and delivers the service's transactional email.
package mail

import (
	"context"
	"log/slog"
	"time"
)

// Template selects the body and subject of a message.
type Template string

const (
	TemplateOTP               Template = "otp"
	TemplateMagicLink         Template = "magic_link"
	TemplateEmailVerification Template = "email_verification"
	TemplateResetPassword     Template = "reset_password"
	TemplateWelcome           Template = "welcome"
)

var subjects = map[Template]string{
	TemplateOTP:               "Your One-Time Passcode",
	TemplateMagicLink:         "Your Magic Link",
	TemplateEmailVerification: "Verify Your Email Address",
	TemplateResetPassword:     "Reset Your Password",
	TemplateWelcome:           "Welcome to Gatehouse!",
}

// Message is what the service enqueues. At most one of Code or URL is set,
// depending on the template.
type Message struct {
	To        string
	Template  Template
	Code      string
	URL       string
	ExpiresIn time.Duration
}

// LogValue keeps secrets out of log lines.
func (m Message) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("to", m.To),
		slog.String("template", string(m.Template)),
	)
}

// Email is a rendered message ready for a transport.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// LogSender writes emails to the logger instead of delivering them. It is
// used when no SMTP host is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, e Email) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "email not delivered, smtp disabled", "to", e.To, "subject", e.Subject)
	l.DebugContext(ctx, "email body", "to", e.To, "text", e.Text)
	return nil
}
