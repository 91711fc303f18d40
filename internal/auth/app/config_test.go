package app

import (
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"
)

// defaultConfig parses an empty environment so the tests only see envDefault
// values, whatever the host process has set.
func defaultConfig(t *testing.T) Config {
	t.Helper()
	var cfg Config
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}))
	return cfg
}

func TestConfigDefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "EdDSA", cfg.JWTAlgorithm)
	require.Equal(t, "cookie", cfg.CSRFBinding)
	require.Equal(t, 10, cfg.MaxSignInAttempts)
	require.False(t, cfg.IsProduction())
	require.False(t, cfg.TrustProxy, "proxy headers are opt-in")
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Parallel()

	var cfg Config
	err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{
		"ENV":             "prod",
		"CLIENT_URL":      "https://app.example.com/",
		"ALLOWED_ORIGINS": "https://admin.example.com, ,https://docs.example.com/",
		"JWT_ACCESS_TTL":  "5m",
		"CSRF_BINDING":    "ip",
		"TRUST_PROXY":     "true",
	}})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.True(t, cfg.IsProduction())
	require.Equal(t, "ip", cfg.CSRFBinding)
	require.True(t, cfg.TrustProxy)
	require.Equal(t, []string{
		"https://app.example.com",
		"https://admin.example.com",
		"https://docs.example.com",
	}, cfg.Origins())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "relative client url",
			mutate: func(c *Config) { c.ClientURL = "/app" },
			want:   "CLIENT_URL",
		},
		{
			name:   "short hs256 secret",
			mutate: func(c *Config) { c.JWTAlgorithm = "HS256"; c.JWTSecret = "short" },
			want:   "JWT_SECRET must be at least",
		},
		{
			name:   "unknown algorithm",
			mutate: func(c *Config) { c.JWTAlgorithm = "RS256" },
			want:   "JWT_ALGORITHM",
		},
		{
			name:   "refresh shorter than access",
			mutate: func(c *Config) { c.JWTRefreshTTL = c.JWTAccessTTL },
			want:   "JWT_REFRESH_TTL",
		},
		{
			name:   "bcrypt cost out of range",
			mutate: func(c *Config) { c.BcryptCost = 40 },
			want:   "BCRYPT_COST",
		},
		{
			name:   "captcha threshold not below max",
			mutate: func(c *Config) { c.CaptchaThreshold = c.MaxSignInAttempts },
			want:   "CAPTCHA_THRESHOLD",
		},
		{
			name:   "unknown csrf binding",
			mutate: func(c *Config) { c.CSRFBinding = "header" },
			want:   "CSRF_BINDING",
		},
		{
			name:   "google id without secret",
			mutate: func(c *Config) { c.GoogleClientID = "id"; c.GoogleCallbackURL = "https://api.test/cb" },
			want:   "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET",
		},
		{
			name: "github without callback",
			mutate: func(c *Config) {
				c.GitHubClientID = "id"
				c.GitHubClientSecret = "secret"
			},
			want: "GITHUB_CALLBACK_URL",
		},
		{
			name:   "bad cleanup schedule",
			mutate: func(c *Config) { c.CleanupSchedule = "every tuesday" },
			want:   "CLEANUP_SCHEDULE",
		},
		{
			name:   "zero otp ttl",
			mutate: func(c *Config) { c.OTPTTL = 0 },
			want:   "OTP_TTL must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigValidateReportsEverything(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Port = 0
	cfg.RedisURL = ""
	cfg.MailWorkers = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "PORT 0 out of range")
	require.Contains(t, err.Error(), "REDIS_URL is required")
	require.Contains(t, err.Error(), "MAIL_WORKERS must be positive")
}
