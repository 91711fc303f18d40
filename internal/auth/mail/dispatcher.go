package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrQueueFull = errors.New("mail: queue full")
	ErrClosed    = errors.New("mail: dispatcher closed")
)

// DispatcherConfig bounds the queue and the retry budget.
type DispatcherConfig struct {
	Workers      int
	QueueSize    int
	MaxAttempts  int
	RetryInitial time.Duration
	SendTimeout  time.Duration
}

func (c *DispatcherConfig) defaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
}

// Dispatcher queues messages in memory and delivers them from a fixed pool
// of workers. Enqueue never blocks: a full queue drops the message.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger
	cfg    DispatcherConfig

	mu     sync.RWMutex
	closed bool
	queue  chan Message
}

func NewDispatcher(sender Sender, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender: sender,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan Message, cfg.QueueSize),
	}
}

// Enqueue hands m to the workers.
func (d *Dispatcher) Enqueue(ctx context.Context, m Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- m:
		return nil
	default:
		d.logger.WarnContext(ctx, "mail queue full, dropping message", "mail", m)
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled. Messages still
// queued at that point are delivered before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	sendCtx := context.WithoutCancel(ctx)

	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range d.queue {
				d.deliver(sendCtx, m)
			}
		}()
	}

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	wg.Wait()
	d.logger.Info("mail dispatcher stopped")
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) {
	email, err := Render(m)
	if err != nil {
		d.logger.Error("render email", "mail", m, "error", err)
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.RetryInitial

	attempt := 0
	op := func() error {
		attempt++
		sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
		return d.sender.Send(sctx, email)
	}
	notify := func(err error, next time.Duration) {
		d.logger.Warn("email send failed, retrying",
			"mail", m,
			"attempt", attempt,
			"retry_in", next,
			"error", err,
		)
	}

	policy := backoff.WithMaxRetries(b, uint64(d.cfg.MaxAttempts-1))
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		d.logger.Error("email send gave up", "mail", m, "attempts", attempt, "error", err)
		return
	}
	d.logger.Debug("email sent", "mail", m)
}
