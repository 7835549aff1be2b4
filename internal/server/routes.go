package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/auth"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
)

// Options wires the gateway's handlers.
type Options struct {
	Auth     *auth.Service
	Provider AuthURLBuilder
	Proxy    Forwarder
	Server   shared.ServerConfig
	Limits   shared.LimitsConfig
	Logger   *log.Logger
}

// NewGateway builds the router for every gateway endpoint.
//
// Global middleware runs request logging, panic recovery, then CORS. Everything but /health
// is under the API limiter; the credential endpoints also share the stricter login limiter.
func NewGateway(opts Options) *BasicRouter {
	h := NewHandlers(opts.Auth, opts.Provider, opts.Proxy, opts.Logger)

	api := NewRateLimiter(opts.Limits.APIRequests, opts.Limits.APIWindow,
		"Too many requests from this IP, please try again later.").Middleware()
	login := NewRateLimiter(opts.Limits.LoginRequests, opts.Limits.LoginWindow,
		"Too many login attempts, please try again later.").Middleware()

	notConfigured := RequireSetup(opts.Auth.Gate, models.NotConfigured, opts.Logger)
	configured := RequireSetup(opts.Auth.Gate, models.Configured, opts.Logger)
	guest := RequireGuest(opts.Auth.Sessions, opts.Logger)

	r := NewBasicRouter()
	r.Use(RequestLogger(opts.Logger), Recoverer(opts.Logger), CORS(opts.Server.FrontendURL))

	r.Handle(http.MethodGet, "/health", http.HandlerFunc(h.Health))
	r.Handle(http.MethodGet, "/status", http.HandlerFunc(h.Status), api)

	r.Handle(http.MethodGet, "/admin/oauth-url", http.HandlerFunc(h.OAuthURL), api, notConfigured)
	r.Handle(http.MethodPost, "/admin/complete-setup", http.HandlerFunc(h.CompleteSetup), api, notConfigured)

	r.Handle(http.MethodPost, "/guest/login", http.HandlerFunc(h.GuestLogin), api, configured, login)
	r.Handle(http.MethodPost, "/guest/logout", http.HandlerFunc(h.GuestLogout), api)
	r.Handle(http.MethodPost, "/password/change", http.HandlerFunc(h.ChangePassword), api, configured, login)

	r.Handle("", "/proxy/{path...}", http.HandlerFunc(h.Proxy), api, guest)

	r.notFound = api(http.HandlerFunc(NotFound))
	return r
}

// NewHTTPServer wraps handler in an [http.Server] using the configured address and timeouts.
func NewHTTPServer(cfg shared.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
