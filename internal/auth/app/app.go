package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/gatehouse/internal/auth/cache"
	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/gatehouse/internal/auth/http"
	"github.com/aussiebroadwan/gatehouse/internal/auth/mail"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Option customises an Application before its dependencies are built.
type Option func(*Application)

// WithLogger replaces the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *Application) { a.logger = l }
}

// WithMailSender replaces the SMTP or log transport chosen from the config.
func WithMailSender(s mail.Sender) Option {
	return func(a *Application) { a.sender = s }
}

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       *sqlite.Store
	cache    *cache.Redis
	signer   jwtx.Signer
	registry *prometheus.Registry
	metrics  *service.Metrics

	// Services
	sender       mail.Sender
	dispatcher   *mail.Dispatcher
	ledger       *service.RevocationLedger
	throttle     *service.Throttle
	sessions     *service.SessionService
	authService  *service.AuthService
	csrfGuard    *service.CSRFGuard
	housekeeping *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	app := &Application{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCache(ctx); err != nil {
		app.close()
		return nil, err
	}

	signer, err := InitSigner(cfg, app.logger)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize JWT signer: %w", err)
	}
	app.signer = signer

	app.initMetrics()
	app.initMail()
	if err := app.initServices(ctx); err != nil {
		app.close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)
	return app.Serve(ctx, nil)
}

// Serve runs the HTTP server and the background workers until ctx is done
// or one of them fails, then shuts everything down. A nil ln listens on the
// configured port. Queued mail is flushed after the HTTP server has drained
// so late requests can still enqueue.
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	defer app.close()

	mailCtx, stopMail := context.WithCancel(context.WithoutCancel(ctx))
	defer stopMail()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return app.dispatcher.Run(mailCtx) })
	g.Go(func() error { return app.housekeeping.Run(gctx) })
	g.Go(func() error {
		var err error
		if ln == nil {
			err = app.server.ListenAndServe()
		} else {
			err = app.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer stopMail()
		return app.shutdownServer()
	})

	return g.Wait()
}

func (app *Application) shutdownServer() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// close releases the database and cache connections.
func (app *Application) close() {
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.Error("error closing cache", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
		}
	}
	app.logger.Info("auth service stopped")
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initCache(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, err := cache.Open(ctx, app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.cache = c
	return nil
}

func (app *Application) initMetrics() {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = service.NewMetrics(app.registry)
}

func (app *Application) initMail() {
	if app.sender == nil {
		if app.cfg.EmailHost == "" {
			app.logger.Warn("EMAIL_HOST not set - emails are logged, not sent")
			app.sender = mail.LogSender{Logger: app.logger}
		} else {
			app.sender = mail.NewSMTPSender(mail.SMTPConfig{
				Host:     app.cfg.EmailHost,
				Port:     app.cfg.EmailPort,
				Username: app.cfg.EmailUser,
				Password: app.cfg.EmailPassword,
				From:     app.cfg.EmailFrom,
			})
		}
	}
	app.dispatcher = mail.NewDispatcher(app.sender, app.logger, mail.DispatcherConfig{
		Workers:   app.cfg.MailWorkers,
		QueueSize: app.cfg.MailQueueSize,
	})
}

// initServices initializes all business logic services
func (app *Application) initServices(ctx context.Context) error {
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	hasher := cryptox.NewPasswordHasher(pepper)

	app.ledger = &service.RevocationLedger{Store: app.db}
	app.throttle = &service.Throttle{
		Cache:            app.cache,
		Max:              app.cfg.MaxSignInAttempts,
		Window:           app.cfg.BlockTTL,
		CaptchaThreshold: app.cfg.CaptchaThreshold,
	}
	app.csrfGuard = &service.CSRFGuard{Cache: app.cache, TTL: app.cfg.CSRFTTL}

	app.sessions = &service.SessionService{
		Signer:     app.signer,
		Verifier:   jwtx.NewVerifier(app.signer, jwtx.VerifyOptions{Issuer: app.cfg.JWTIssuer}),
		Ledger:     app.ledger,
		Store:      app.db,
		Issuer:     app.cfg.JWTIssuer,
		AccessTTL:  app.cfg.JWTAccessTTL,
		RefreshTTL: app.cfg.JWTRefreshTTL,
		Metrics:    app.metrics,
	}

	oauth, err := app.initOAuth(ctx)
	if err != nil {
		return err
	}

	app.authService = &service.AuthService{
		Store: app.db,
		Secrets: &service.Secrets{
			Cost: app.cfg.BcryptCost,
			TTLs: service.SecretTTLs{
				OTP:               app.cfg.OTPTTL,
				MagicLink:         app.cfg.MagicLinkTTL,
				EmailVerification: app.cfg.EmailVerificationTTL,
				PasswordReset:     app.cfg.PasswordResetTTL,
			},
		},
		Hasher:    hasher,
		Mailer:    app.dispatcher,
		Throttle:  app.throttle,
		Password:  &service.PasswordIdentifier{Store: app.db, Hasher: hasher},
		OAuth:     oauth,
		ClientURL: app.cfg.ClientURL,
		Metrics:   app.metrics,
	}
	app.authService.Captcha = captchaVerifier(app.cfg, app.logger)

	app.housekeeping = service.NewHousekeepingService(
		app.ledger,
		app.logger,
		app.cfg.CleanupSchedule,
		app.cfg.CleanupBatchSize,
	)
	app.housekeeping.Metrics = app.metrics
	return nil
}

func (app *Application) initOAuth(ctx context.Context) (map[domain.Provider]service.OAuthProvider, error) {
	providers := map[domain.Provider]service.OAuthProvider{}

	google := service.OAuthConfig{
		ClientID:     app.cfg.GoogleClientID,
		ClientSecret: app.cfg.GoogleClientSecret,
		RedirectURL:  app.cfg.GoogleCallbackURL,
	}
	if google.Enabled() {
		g, err := service.NewGoogleIdentifier(ctx, google)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize google sign-in: %w", err)
		}
		providers[domain.ProviderGoogle] = g
		app.logger.Info("google sign-in enabled")
	}

	github := service.OAuthConfig{
		ClientID:     app.cfg.GitHubClientID,
		ClientSecret: app.cfg.GitHubClientSecret,
		RedirectURL:  app.cfg.GitHubCallbackURL,
	}
	if github.Enabled() {
		providers[domain.ProviderGitHub] = service.NewGitHubIdentifier(github)
		app.logger.Info("github sign-in enabled")
	}

	return providers, nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger, httpapi.Options{
		AllowedOrigins: app.cfg.Origins(),
		RateLimit: httpx.RateLimitConfig{
			RequestsPerWindow: app.cfg.RateLimit,
			Window:            app.cfg.RateLimitWindow,
		},
		RequestTimeout: app.cfg.RequestTimeout,
		TrustProxy:     app.cfg.TrustProxy,
	})

	// Wire services to router
	router.Auth = app.authService
	router.Sessions = app.sessions
	router.CSRF = app.csrfGuard
	router.Throttle = app.throttle
	router.Ready = map[string]httpapi.Pinger{
		"database": app.db,
		"cache":    app.cache,
	}
	router.Gatherer = app.registry
	router.Cookies = httpapi.CookieConfig{Secure: app.cfg.IsProduction()}
	router.CSRFBinding = httpapi.CSRFBinding(app.cfg.CSRFBinding)
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// captchaVerifier returns the Turnstile client, or nil when no secret is
// configured. Running without one in production is logged as a warning.
func captchaVerifier(cfg Config, logger *slog.Logger) service.CaptchaVerifier {
	if cfg.TurnstileSecretKey == "" {
		if cfg.IsProduction() {
			logger.Warn("captcha escalation disabled, TURNSTILE_SECRET_KEY is not set",
				"threshold", cfg.CaptchaThreshold)
		} else {
			logger.Debug("captcha escalation disabled")
		}
		return nil
	}
	logger.Info("captcha escalation enabled", "threshold", cfg.CaptchaThreshold)
	return service.NewTurnstile(cfg.TurnstileSecretKey)
}
