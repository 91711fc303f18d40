package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

type Config struct {
	Env                 string        `env:"ENV"                   envDefault:"dev"`                   // Environment (dev, staging, prod)
	LogLevel            string        `env:"LOG_LEVEL"             envDefault:"info"`                  // Log level (debug, info, warn, error)
	LogFormat           string        `env:"LOG_FORMAT"            envDefault:"json"`                  // Log format (json, text)
	Port                int           `env:"PORT"                  envDefault:"8080"`                  // HTTP server port
	ClientURL           string        `env:"CLIENT_URL"            envDefault:"http://localhost:3000"` // Front-end origin used in emailed links
	AllowedOrigins      []string      `env:"ALLOWED_ORIGINS"       envSeparator:","`                   // Origins allowed to post forms; CLIENT_URL is always allowed
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT"       envDefault:"1m"`                    // Per-request context deadline
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`                   // Graceful shutdown timeout
	TrustProxy          bool          `env:"TRUST_PROXY"           envDefault:"false"`                 // Read the client address from proxy headers; only behind a trusted proxy

	DatabaseFile string `env:"AUTH_DATABASE_FILE" envDefault:"auth.db"` // Path to SQLite database file
	PepperFile   string `env:"AUTH_PEPPER_FILE"   envDefault:"pepper"`  // Path to the password pepper, created on first start
	RedisURL     string `env:"REDIS_URL"          envDefault:"redis://localhost:6379/0"`

	JWTIssuer         string        `env:"JWT_ISSUER"           envDefault:"gatehouse"`
	JWTAlgorithm      string        `env:"JWT_ALGORITHM"        envDefault:"EdDSA"` // EdDSA or HS256
	JWTSecret         string        `env:"JWT_SECRET"`                              // HS256 only, at least 32 bytes
	JWTPrivateKeyFile string        `env:"JWT_PRIVATE_KEY_FILE"`                    // EdDSA only; empty generates an ephemeral key
	JWTAccessTTL      time.Duration `env:"JWT_ACCESS_TTL"       envDefault:"15m"`
	JWTRefreshTTL     time.Duration `env:"JWT_REFRESH_TTL"      envDefault:"168h"`

	OTPTTL               time.Duration `env:"OTP_TTL"                envDefault:"1m"`
	MagicLinkTTL         time.Duration `env:"MAGIC_LINK_TTL"         envDefault:"1h"`
	EmailVerificationTTL time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"1h"`
	PasswordResetTTL     time.Duration `env:"PASSWORD_RESET_TTL"     envDefault:"1h"`
	BcryptCost           int           `env:"BCRYPT_COST"            envDefault:"12"` // Cost for hashing emailed secrets

	RateLimit         int           `env:"RATE_LIMIT"          envDefault:"100"` // Requests per window per IP; 0 disables
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW"   envDefault:"15m"`
	MaxSignInAttempts int           `env:"MAX_SIGNIN_ATTEMPTS" envDefault:"10"`
	CaptchaThreshold  int           `env:"CAPTCHA_THRESHOLD"   envDefault:"3"`
	BlockTTL          time.Duration `env:"BLOCK_TTL"           envDefault:"15m"`
	CSRFTTL           time.Duration `env:"CSRF_TTL"            envDefault:"1h"`
	CSRFBinding       string        `env:"CSRF_BINDING"        envDefault:"cookie"` // cookie or ip

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `env:"GITHUB_CALLBACK_URL"`

	TurnstileSecretKey string `env:"TURNSTILE_SECRET_KEY"` // Empty disables CAPTCHA escalation

	EmailHost     string `env:"EMAIL_HOST"` // Empty logs emails instead of sending them
	EmailPort     int    `env:"EMAIL_PORT"     envDefault:"587"`
	EmailUser     string `env:"EMAIL_USER"`
	EmailPassword string `env:"EMAIL_PASSWORD"`
	EmailFrom     string `env:"EMAIL_FROM"     envDefault:"Gatehouse <no-reply@localhost>"`
	MailWorkers   int    `env:"MAIL_WORKERS"    envDefault:"2"`
	MailQueueSize int    `env:"MAIL_QUEUE_SIZE" envDefault:"256"`

	CleanupSchedule  string `env:"CLEANUP_SCHEDULE"   envDefault:"@daily"` // Cron spec for the revocation ledger sweep
	CleanupBatchSize int    `env:"CLEANUP_BATCH_SIZE" envDefault:"100"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadConfig reads and validates the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsProduction() bool { return c.Env == "prod" || c.Env == "production" }

// Origins returns the client origin followed by ALLOWED_ORIGINS.
func (c Config) Origins() []string {
	out := []string{strings.TrimRight(c.ClientURL, "/")}
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, strings.TrimRight(o, "/"))
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Port > 0 && c.Port < 65536, "PORT %d out of range", c.Port)
	if u, err := url.Parse(c.ClientURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("CLIENT_URL %q is not an absolute URL", c.ClientURL))
	}
	check(c.RequestTimeout >= 0, "REQUEST_TIMEOUT must not be negative")
	check(c.ShutdownGracePeriod > 0, "SHUTDOWN_GRACE_PERIOD must be positive")
	check(c.DatabaseFile != "", "AUTH_DATABASE_FILE is required")
	check(c.PepperFile != "", "AUTH_PEPPER_FILE is required")
	check(c.RedisURL != "", "REDIS_URL is required")

	switch c.JWTAlgorithm {
	case "EdDSA":
	case "HS256":
		check(len(c.JWTSecret) >= jwtx.MinHS256SecretSize,
			"JWT_SECRET must be at least %d bytes for HS256", jwtx.MinHS256SecretSize)
	default:
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM %q not supported (EdDSA, HS256)", c.JWTAlgorithm))
	}
	check(c.JWTIssuer != "", "JWT_ISSUER is required")
	check(c.JWTAccessTTL > 0, "JWT_ACCESS_TTL must be positive")
	check(c.JWTRefreshTTL > c.JWTAccessTTL, "JWT_REFRESH_TTL must exceed JWT_ACCESS_TTL")

	for name, ttl := range map[string]time.Duration{
		"OTP_TTL":                c.OTPTTL,
		"MAGIC_LINK_TTL":         c.MagicLinkTTL,
		"EMAIL_VERIFICATION_TTL": c.EmailVerificationTTL,
		"PASSWORD_RESET_TTL":     c.PasswordResetTTL,
		"BLOCK_TTL":              c.BlockTTL,
		"CSRF_TTL":               c.CSRFTTL,
	} {
		check(ttl > 0, "%s must be positive", name)
	}
	check(c.BcryptCost >= bcrypt.MinCost && c.BcryptCost <= bcrypt.MaxCost,
		"BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)

	check(c.RateLimit >= 0, "RATE_LIMIT must not be negative")
	check(c.RateLimit == 0 || c.RateLimitWindow > 0, "RATE_LIMIT_WINDOW must be positive")
	check(c.MaxSignInAttempts > 0, "MAX_SIGNIN_ATTEMPTS must be positive")
	check(c.CaptchaThreshold > 0 && c.CaptchaThreshold < c.MaxSignInAttempts,
		"CAPTCHA_THRESHOLD must be between 1 and MAX_SIGNIN_ATTEMPTS-1")
	check(c.CSRFBinding == "cookie" || c.CSRFBinding == "ip", "CSRF_BINDING %q must be cookie or ip", c.CSRFBinding)

	check((c.GoogleClientID == "") == (c.GoogleClientSecret == ""),
		"GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	check(c.GoogleClientID == "" || c.GoogleCallbackURL != "", "GOOGLE_CALLBACK_URL is required with Google sign-in")
	check((c.GitHubClientID == "") == (c.GitHubClientSecret == ""),
		"GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	check(c.GitHubClientID == "" || c.GitHubCallbackURL != "", "GITHUB_CALLBACK_URL is required with GitHub sign-in")

	check(c.EmailHost == "" || c.EmailPort > 0, "EMAIL_PORT must be positive")
	check(c.MailWorkers > 0, "MAIL_WORKERS must be positive")
	check(c.MailQueueSize > 0, "MAIL_QUEUE_SIZE must be positive")

	if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("CLEANUP_SCHEDULE %q: %w", c.CleanupSchedule, err))
	}
	check(c.CleanupBatchSize > 0, "CLEANUP_BATCH_SIZE must be positive")

	return errors.Join(errs...)
}
