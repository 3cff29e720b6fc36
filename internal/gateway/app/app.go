package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	httpapi "github.com/aussiebroadwan/gateway/internal/gateway/http"
	"github.com/aussiebroadwan/gateway/internal/gateway/metrics"
	"github.com/aussiebroadwan/gateway/internal/gateway/push"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/aussiebroadwan/gateway/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/gateway/internal/gateway/ttlstore"
	"github.com/aussiebroadwan/gateway/pkg/cryptox"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/aussiebroadwan/gateway/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application is the gateway process with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	codec    *jwtx.Codec
	bridge   *broker.Bridge
	registry *push.Registry
	redis    *redis.Client // nil with the memory backend

	federationStates ttlstore.Store[domain.PendingFederation]
	stepUpStates     ttlstore.Store[domain.PendingStepUp]
	tickets          ttlstore.Store[domain.SocketTicket]
	stoppers         []func()

	// Services
	sessionService      *service.SessionService
	stepUpService       *service.StepUpService
	authService         *service.AuthService
	mfaService          *service.MFAService
	federation          *service.FederationClient // nil when no provider is configured
	housekeepingService *service.HousekeepingService
	ticketAuthority     *push.TicketAuthority

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates an Application with every dependency initialized. The broker
// bridge is built but only starts connecting in Run.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gateway",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	proxies, err := cfg.Proxies()
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	codec, err := InitCodec(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.codec = codec

	if err := app.initStates(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initBroker()

	if err := app.initServices(ctx); err != nil {
		app.closeStates()
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP(proxies)

	return app, nil
}

// Start launches the background workers: the broker bridge, which keeps
// reconnecting until Shutdown, and housekeeping.
func (app *Application) Start() {
	app.bridge.Start()
	app.housekeepingService.Start()
}

// Run starts the background workers and the HTTP server and blocks until a
// shutdown signal or a server error.
func (app *Application) Run() error {
	app.Start()

	app.logger.Info("gateway starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains HTTP, closes push sockets, stops the bridge and the
// background workers, then closes the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Hijacked sockets are not tracked by Shutdown; closing the registry
	// ends them.
	app.registry.Close()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.bridge.Stop()
	app.housekeepingService.Stop()
	app.closeStates()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gateway stopped")
	return nil
}

// Handler exposes the routed HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// initDatabase opens the account database and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initStates builds the single-use state stores on the configured backend.
func (app *Application) initStates(ctx context.Context) error {
	switch app.cfg.StateBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
		}
		app.redis = client
		prefix := app.cfg.RedisPrefix
		app.federationStates = ttlstore.NewRedis[domain.PendingFederation](client, prefix+"federation:")
		app.stepUpStates = ttlstore.NewRedis[domain.PendingStepUp](client, prefix+"stepup:")
		app.tickets = ttlstore.NewRedis[domain.SocketTicket](client, prefix+"ticket:")
		app.logger.Info("ephemeral state on redis", "addr", app.cfg.RedisAddr)

	default:
		federationStates := ttlstore.NewMemory[domain.PendingFederation]()
		stepUpStates := ttlstore.NewMemory[domain.PendingStepUp]()
		tickets := ttlstore.NewMemory[domain.SocketTicket]()
		app.federationStates, app.stepUpStates, app.tickets = federationStates, stepUpStates, tickets
		app.stoppers = append(app.stoppers, federationStates.Stop, stepUpStates.Stop, tickets.Stop)
		app.logger.Info("ephemeral state in memory")
	}
	return nil
}

func (app *Application) closeStates() {
	for _, stop := range app.stoppers {
		stop()
	}
	app.stoppers = nil
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
		app.redis = nil
	}
}

// initBroker builds the bridge and routes worker notifications to sockets.
func (app *Application) initBroker() {
	app.registry = push.NewRegistry()
	app.registry.OnChange = metrics.SetPushSockets

	// Validate already rejected unknown names.
	queues, _ := app.cfg.Queues()

	app.bridge = broker.New(broker.Options{
		URL:               app.cfg.BrokerURL,
		ReplyQueue:        app.cfg.ReplyQueue,
		NotificationQueue: app.cfg.NotificationQueue,
		Queues:            queues,
		ReconnectDelay:    app.cfg.ReconnectDelay,
		CallTimeout:       app.cfg.CallTimeout,
		OutboxSize:        app.cfg.OutboxSize,
		Logger:            app.logger,
		Observer:          metrics.BridgeObserver{},
		OnNotification: func(userID string, payload []byte) {
			metrics.RecordPushDelivery(app.registry.Broadcast(userID, payload))
		},
	})
}

// initServices builds the business services. The federated provider is
// contacted here, so a misconfigured provider fails startup.
func (app *Application) initServices(ctx context.Context) error {
	hasher, err := cryptox.NewPasswordHasher(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	algorithm, err := service.ParseOTPAlgorithm(app.cfg.StepUpAlgorithm)
	if err != nil {
		return err
	}

	app.sessionService = &service.SessionService{
		Store:      app.db,
		Codec:      app.codec,
		RefreshTTL: app.cfg.RefreshTTL,
	}
	app.stepUpService = &service.StepUpService{
		States:    app.stepUpStates,
		Verifier:  app.codec,
		TTL:       app.cfg.StepUpTTL,
		Algorithm: algorithm,
	}
	app.authService = &service.AuthService{
		Store:    app.db,
		Codec:    app.codec,
		Hasher:   hasher,
		Sessions: app.sessionService,
		StepUp:   app.stepUpService,
		Onboarding: &service.OnboardingService{
			Store:  app.db,
			Bridge: app.bridge,
			Logger: app.logger,
		},
	}
	app.mfaService = &service.MFAService{
		Store:  app.db,
		StepUp: app.stepUpService,
		Issuer: app.cfg.Issuer,
	}
	app.ticketAuthority = push.NewTicketAuthority(app.tickets, app.cfg.TicketTTL)

	// A nil *FederationClient must not reach the KeyRefresher interface.
	var keys service.KeyRefresher
	if app.cfg.FederationEnabled() {
		fed, err := service.NewFederationClient(ctx, service.FederationConfig{
			IssuerURL:    app.cfg.ProviderIssuerURL,
			ClientID:     app.cfg.ProviderClientID,
			ClientSecret: app.cfg.ProviderClientSecret,
			RedirectURL:  app.cfg.ProviderRedirectURL,
			Scopes:       app.cfg.ProviderScopes,
			StateTTL:     app.cfg.FederationStateTTL,
		}, app.codec, app.federationStates, service.WithFederationLogger(app.logger))
		if err != nil {
			return fmt.Errorf("failed to initialize federation: %w", err)
		}
		app.federation = fed
		app.authService.Federation = fed
		keys = fed
		app.logger.Info("federation enabled", "issuer", app.cfg.ProviderIssuerURL)
	} else {
		app.logger.Info("federation disabled")
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		keys,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.RefreshTTL,
	)
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP(proxies []netip.Prefix) {
	router := httpapi.NewRouter(app.codec, app.db, httpapi.Options{
		BuildVersion: BuildVersion,
		Cookies: httpapi.CredentialCookies{
			CookieOptions: httpx.CookieOptions{
				Domain: app.cfg.CookieDomain,
				Path:   "/",
				Secure: app.cfg.CookieSecure,
			},
			RefreshTTL: app.cfg.RefreshTTL,
		},
		StepUpPath:     app.cfg.StepUpPath,
		AppURL:         app.cfg.AppURL,
		TrustedProxies: proxies,
	}, app.logger)

	router.AuthService = app.authService
	router.SessionService = app.sessionService
	router.MFAService = app.mfaService
	router.Tickets = app.ticketAuthority
	router.Push = &push.Handler{
		Tickets:        app.ticketAuthority,
		Registry:       app.registry,
		OriginPatterns: app.cfg.OriginPatterns,
	}
	router.Bridge = app.bridge
	router.Federation = app.federation
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
