package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/aussiebroadwan/gatehouse/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Options tunes the global middleware chain.
type Options struct {
	// AllowedOrigins may send cross-site form posts.
	AllowedOrigins []string
	// RateLimit applies per client IP to every route. Zero disables it.
	RateLimit httpx.RateLimitConfig
	// RequestTimeout bounds each request context. Zero disables it.
	RequestTimeout time.Duration
	// TrustProxy takes the client address from X-Forwarded-For and similar
	// headers instead of the connection.
	TrustProxy bool
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Auth     *service.AuthService
	Sessions *service.SessionService
	CSRF     *service.CSRFGuard
	Throttle *service.Throttle

	// Ready lists the dependencies /readyz pings.
	Ready map[string]Pinger
	// Gatherer backs /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer

	Cookies     CookieConfig
	CSRFBinding CSRFBinding
}

func NewRouter(buildVersion string, logger *slog.Logger, opts Options) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	if opts.TrustProxy {
		r.middlewares = append(r.middlewares, httpx.RealIP())
	}
	r.middlewares = append(r.middlewares, slogx.HTTPMiddleware(r.logger))
	if opts.RateLimit.RequestsPerWindow > 0 {
		cfg := opts.RateLimit
		cfg.OnLimit = func(w http.ResponseWriter, req *http.Request, retryAfter int) {
			writeError(w, req, authsdk.TooManyRequests("Too many requests, please try again later",
				authsdk.WithDetails(map[string]any{"retryAfter": retryAfter})))
		}
		r.middlewares = append(r.middlewares, httpx.RateLimitByIP(cfg))
	}
	if opts.RequestTimeout > 0 {
		r.middlewares = append(r.middlewares, httpx.Timeout(opts.RequestTimeout))
	}
	r.middlewares = append(r.middlewares, fetchMetadata(opts.AllowedOrigins))

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerOAuth()
	r.registerUsers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
	r.Mux.Handle("/", NotFoundHandler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gatehouse Authentication Service API
//	@version		0.1.0
//	@description	Cookie based authentication: credentials, one-time codes, magic links and Google/GitHub sign-in.
//	@description
//	@description				Sessions are a short-lived access token and a single-use refresh token, both carried in http-only cookies.
//	@description				Every state-changing request must echo the token from GET /v1/auth/csrf in the X-CSRF header.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gatehouse
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	CookieAuth
//	@in							cookie
//	@name						access_token
//	@description				JWT access token set by sign-in.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) authHandler() *AuthHandler {
	return &AuthHandler{
		Auth:     r.Auth,
		Sessions: r.Sessions,
		CSRF:     r.CSRF,
		Cookies:  r.Cookies,
		Binding:  r.CSRFBinding,
		SignedIn: r.signedIn,
	}
}

func (r *Router) registerAuth() {
	h := r.authHandler()
	csrf := r.requireCSRF(r.CSRF)

	r.Mux.Handle("GET /v1/auth/csrf", http.HandlerFunc(h.HandleCSRF))

	r.Mux.Handle("POST /v1/auth/signup", httpx.Chain(http.HandlerFunc(h.HandleSignUp), csrf))
	r.Mux.Handle("POST /v1/auth/signin",
		httpx.Chain(http.HandlerFunc(h.HandleSignIn),
			csrf,
			throttleSignIn(r.Throttle),
		),
	)
	r.Mux.Handle("DELETE /v1/auth/signout", httpx.Chain(http.HandlerFunc(h.HandleSignOut), csrf))
	r.Mux.Handle("POST /v1/auth/refresh", httpx.Chain(http.HandlerFunc(h.HandleRefresh), csrf))

	r.Mux.Handle("POST /v1/auth/otp", httpx.Chain(http.HandlerFunc(h.HandleRequestOTP), csrf))
	r.Mux.Handle("POST /v1/auth/otp/verify", httpx.Chain(http.HandlerFunc(h.HandleVerifyOTP), csrf))
	r.Mux.Handle("POST /v1/auth/magic-link", httpx.Chain(http.HandlerFunc(h.HandleRequestMagicLink), csrf))
	r.Mux.Handle("POST /v1/auth/magic-link/verify", httpx.Chain(http.HandlerFunc(h.HandleVerifyMagicLink), csrf))
	r.Mux.Handle("POST /v1/auth/email-verification", httpx.Chain(http.HandlerFunc(h.HandleRequestEmailVerification), csrf))
	r.Mux.Handle("POST /v1/auth/email/verify", httpx.Chain(http.HandlerFunc(h.HandleVerifyEmail), csrf))
	r.Mux.Handle("POST /v1/auth/password/forget", httpx.Chain(http.HandlerFunc(h.HandleForgotPassword), csrf))
	r.Mux.Handle("POST /v1/auth/password/reset", httpx.Chain(http.HandlerFunc(h.HandleResetPassword), csrf))
	r.Mux.Handle("PATCH /v1/auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleUpdatePassword),
			csrf,
			r.requireAuth(),
		),
	)
}

func (r *Router) registerOAuth() {
	h := r.authHandler()
	for _, p := range []domain.Provider{domain.ProviderGoogle, domain.ProviderGitHub} {
		oh := &OAuthHandler{AuthHandler: h, Provider: p}
		r.Mux.HandleFunc("GET /v1/auth/"+string(p), oh.HandleStart)
		r.Mux.HandleFunc("GET "+oh.callbackPath(), oh.HandleCallback)
	}
}

func (r *Router) registerUsers() {
	r.Mux.Handle("GET /v1/users/me", httpx.Chain(MeHandler(r.Auth), r.requireAuth()))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.Ready))
	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{}))
	}
}
