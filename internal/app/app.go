// Package app wires the storefront service: configuration, storage,
// sessions, the HTTP API, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/pastavicenzo/storefront/internal/cartsync"
	"github.com/pastavicenzo/storefront/internal/domain/order"
	"github.com/pastavicenzo/storefront/internal/handler"
	"github.com/pastavicenzo/storefront/internal/identity"
	"github.com/pastavicenzo/storefront/internal/session"
	fsstore "github.com/pastavicenzo/storefront/internal/storage/firestore"
	"github.com/pastavicenzo/storefront/internal/storage/local"
	"github.com/pastavicenzo/storefront/internal/storage/postgres"
	"github.com/pastavicenzo/storefront/pkg/health"
	"github.com/pastavicenzo/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("cart_backend", cfg.CartBackend),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Device-local cart store (embedded SQLite).
	localStore, err := local.Open(cfg.LocalStorePath)
	if err != nil {
		return errors.Wrap(err, "open local cart store")
	}
	defer func() { _ = localStore.Close() }()

	// Remote cart store: per-user documents in Postgres or Firestore.
	var remoteStore cartsync.RemoteStore
	switch cfg.CartBackend {
	case "firestore":
		client, err := fsstore.NewClient(ctx, fsstore.ClientConfig{
			ProjectID:       cfg.Firebase.ProjectID,
			CredentialsFile: cfg.Firebase.CredentialsFile,
			EmulatorHost:    cfg.Firebase.EmulatorHost,
		})
		if err != nil {
			return errors.Wrap(err, "create firestore client")
		}
		defer func() { _ = client.Close() }()
		remoteStore = fsstore.NewCartStore(client)
	default:
		remoteStore = postgres.NewCartRepository(pool)
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("local-carts", time.Second, health.PingCheck(localStore))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories and domain services.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	orderService := order.NewService(orderRepo, order.ServiceConfig{
		ShopName:       cfg.Shop.Name,
		WhatsAppNumber: cfg.Shop.WhatsAppNumber,
	})

	// ID token verification.
	var verifier identity.Verifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = identity.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return errors.Wrap(err, "create firebase verifier")
		}
	} else {
		lg.Warn("No Firebase project configured, using the insecure dev token verifier")
		verifier = identity.StaticVerifier{}
	}

	// Per-device cart sessions.
	sessions := session.NewManager(ctx, session.Config{
		Local:          localStore,
		Remote:         remoteStore,
		Debounce:       cfg.Cart.Debounce,
		ClearOnSignOut: cfg.Cart.ClearOnSignOut,
		IdleTimeout:    cfg.Cart.SessionIdleTimeout,
		Logger:         lg.Named("session"),
	})

	// HTTP handlers.
	h := handler.NewHandler(productRepo, orderRepo, orderService, sessions, verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	// Session engines are closed after the server drains so pending
	// debounced cart writes flush before the process exits.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		sessions.Close()
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
