// Package service holds the authentication engine: secrets, sessions, the
// revocation ledger, sign-in throttling, CSRF tokens and the orchestrator
// that composes them.
package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/mail"
)

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// Mailer accepts messages for asynchronous delivery. *mail.Dispatcher
// implements it.
type Mailer interface {
	Enqueue(ctx context.Context, m mail.Message) error
}
