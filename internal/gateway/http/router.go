package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/metrics"
	"github.com/aussiebroadwan/gateway/internal/gateway/push"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/aussiebroadwan/gateway/pkg/slogx"
	"github.com/aussiebroadwan/gateway/pkg/validatex"

	_ "github.com/aussiebroadwan/gateway/api/gateway" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Bridge is the part of the broker bridge the HTTP layer uses.
type Bridge interface {
	Call(ctx context.Context, q broker.Queue, op broker.Op, body string, claim jwtx.Claims, attach *broker.Attachment) (broker.Result, error)
	State() broker.State
}

// Options are the HTTP-level settings that are not services.
type Options struct {
	BuildVersion string
	Cookies      CredentialCookies

	// StepUpPath is where a browser is sent to enter its TOTP code.
	StepUpPath string
	// AppURL is where a browser lands after a federated sign-in.
	AppURL string
	// TrustedProxies may supply the client address in forwarding headers.
	TrustedProxies []netip.Prefix
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec     *jwtx.Codec
	resolver  *service.CredentialResolver
	validate  *validatex.Validator
	opts      Options
	startTime time.Time
	logger    *slog.Logger
	store     store.Store

	AuthService    *service.AuthService
	SessionService *service.SessionService
	MFAService     *service.MFAService
	Tickets        *push.TicketAuthority
	Push           http.Handler
	Bridge         Bridge
	Federation     *service.FederationClient // Optional: nil when no provider is configured
}

func NewRouter(codec *jwtx.Codec, st store.Store, opts Options, logger *slog.Logger) *Router {
	if opts.StepUpPath == "" {
		opts.StepUpPath = "/2fa"
	}
	if opts.AppURL == "" {
		opts.AppURL = "/"
	}

	r := &Router{
		Mux:       http.NewServeMux(),
		codec:     codec,
		resolver:  &service.CredentialResolver{Verifier: codec},
		validate:  validatex.New(),
		opts:      opts,
		startTime: time.Now(),
		logger:    logger,
		store:     st,
	}

	// Metrics must sit directly on the mux to see the matched pattern.
	r.middlewares = []httpx.Middleware{
		httpx.Recover,
		httpx.ClientIP(opts.TrustedProxies),
		slogx.HTTPMiddleware(r.logger),
		metrics.Middleware,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerFederation()
	r.registerSessions()
	r.registerMFA()
	r.registerPush()
	r.registerWorkers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			BarTab Gateway API
//	@version		0.1.0
//	@description	Public entry point for the BarTab game services. Requests are authenticated
//	@description	by the jwt and refresh_token cookies and forwarded to backend workers over
//	@description	the message broker.
//	@description
//	@description				Claims are signed with RS256 and can be verified using the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gateway
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
//	@name						jwt
//	@description				Signed claim set at sign-in. Rotated from the refresh_token cookie when stale.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService: r.AuthService,
		Validate:    r.validate,
		Cookies:     r.opts.Cookies,
		StepUpPath:  r.opts.StepUpPath,
	}

	// POST /signup - moderate rate limit by IP (creates accounts and worker profiles)
	r.Mux.Handle("POST /v1/auth/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignUp),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /signin - strict rate limit by IP + username to slow password guessing
	r.Mux.Handle("POST /v1/auth/signin",
		httpx.Chain(http.HandlerFunc(h.HandleSignIn),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "username"),
		),
	)

	// POST /2fa - strict rate limit by IP + state on top of the per-state attempt cap
	r.Mux.Handle("POST /v1/auth/2fa",
		httpx.Chain(http.HandlerFunc(h.HandleStepUp),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "state"),
		),
	)

	// POST /refresh - moderate rate limit by IP (reads the refresh_token cookie directly)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /logout - authenticated so the session is revoked for the right subject
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.Authenticate,
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerFederation() {
	h := &FederationHandler{
		AuthService: r.AuthService,
		Cookies:     r.opts.Cookies,
		StepUpPath:  r.opts.StepUpPath,
		AppURL:      r.opts.AppURL,
	}

	r.Mux.Handle("GET /v1/auth/federation/state",
		httpx.Chain(http.HandlerFunc(h.HandleState),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/auth/federation/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{SessionService: r.SessionService}

	r.Mux.Handle("GET /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.Authenticate,
			httpx.RateLimitBySubject(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions/{token_id}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			r.Authenticate,
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService, Validate: r.validate}

	// POST /mfa/totp/enroll - moderate rate limit by subject
	securedEnroll := httpx.Chain(http.HandlerFunc(h.HandleEnroll),
		r.Authenticate,
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)

	// POST /mfa/totp/verify - strict rate limit by subject (prevent brute force of TOTP codes)
	securedVerify := httpx.Chain(http.HandlerFunc(h.HandleVerify),
		r.Authenticate,
		httpx.RateLimitBySubject(httpx.StrictLimit),
	)

	// DELETE /mfa/totp - strict rate limit by subject
	securedRemove := httpx.Chain(http.HandlerFunc(h.HandleRemove),
		r.Authenticate,
		httpx.RateLimitBySubject(httpx.StrictLimit),
	)

	r.Mux.Handle("POST /v1/mfa/totp/enroll", securedEnroll)
	r.Mux.Handle("POST /v1/mfa/totp/verify", securedVerify)
	r.Mux.Handle("DELETE /v1/mfa/totp", securedRemove)
}

func (r *Router) registerPush() {
	h := &TicketHandler{Tickets: r.Tickets}

	r.Mux.Handle("POST /v1/push/ticket",
		httpx.Chain(h,
			r.Authenticate,
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)

	// The socket authenticates with its ticket, not cookies.
	r.Mux.Handle("GET /v1/push/ws",
		httpx.Chain(r.Push,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerWorkers() {
	for _, route := range workerRoutes {
		h := &WorkerHandler{Bridge: r.Bridge, Route: route}
		r.Mux.Handle(route.Pattern,
			httpx.Chain(h,
				r.Authenticate,
				httpx.RateLimitBySubject(httpx.LenientLimit),
			),
		)
	}
}

func (r *Router) registerSystem() {
	// GET /jwks.json - public endpoint with high limit
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.codec),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.opts.BuildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.opts.BuildVersion, r.store, r.codec, r.Bridge, r.providerKeys()),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /metrics", metrics.Handler())
}

// providerKeys keeps a nil client out of the interface.
func (r *Router) providerKeys() ProviderKeys {
	if r.Federation == nil {
		return nil
	}
	return r.Federation
}
