package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/atelier/internal"
	"github.com/dukerupert/atelier/internal/address"
	"github.com/dukerupert/atelier/internal/billing"
	"github.com/dukerupert/atelier/internal/handler/api"
	"github.com/dukerupert/atelier/internal/middleware"
	"github.com/dukerupert/atelier/internal/order"
	"github.com/dukerupert/atelier/internal/postgres"
	"github.com/dukerupert/atelier/internal/promotion"
	"github.com/dukerupert/atelier/internal/router"
	"github.com/dukerupert/atelier/internal/routes"
	"github.com/dukerupert/atelier/internal/service"
	"github.com/dukerupert/atelier/internal/shipping"
	"github.com/dukerupert/atelier/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	// Error tracking
	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()

	telemetry.InitBusinessMetrics("atelier")

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if version, err := internal.MigrationVersion(sqlDB); err == nil {
		logger.Info("Database migrations completed", "version", version)
	}

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	orders := postgres.NewOrderStore(pool)

	// Promotion catalog
	var catalog promotion.Catalog
	switch cfg.Checkout.PromotionsSource {
	case internal.PromotionsPostgres:
		catalog = postgres.NewPromotionCatalog(pool)
	default:
		catalog = promotion.DefaultCatalog()
	}
	logger.Info("Promotion catalog initialized", "source", cfg.Checkout.PromotionsSource)

	// Order commit strategy
	var committer service.Committer
	switch cfg.Checkout.CommitMode {
	case internal.CommitCompensate:
		committer = service.NewCompensatingCommitter(orders, logger)
	default:
		committer = service.NewTransactionalCommitter(orders, logger)
	}
	logger.Info("Order committer initialized", "mode", cfg.Checkout.CommitMode)

	// Payment gateway
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	checkoutService := service.NewCheckoutService(service.CheckoutDeps{
		Resolver:  promotion.NewResolver(catalog, logger),
		Assembler: order.NewAssembler(cfg.Checkout.StrictIdentity, logger),
		Gateway:   gateway,
		Committer: committer,
		Addresses: postgres.NewAddressBook(pool),
		Orders:    orders,
		Policy:    shipping.NewThresholdPolicy(cfg.Checkout.DeliveryFreeAbove, cfg.Checkout.DeliveryFlatFee),
		Currency:  cfg.Checkout.Currency,
		Logger:    logger,

		AddressValidator: address.NewBasicValidator(),
		AttemptTimeout:   cfg.Stripe.CheckoutTimeout + 30*time.Second,
	})

	// ==========================================================================
	// Routes
	// ==========================================================================

	metrics := middleware.NewMetrics("atelier")

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		telemetry.SentryMiddleware(),
		metrics.Middleware,
		middleware.WithRequestLogger(logger),
		router.Logger(logger),
	)

	routes.RegisterCheckoutRoutes(r, routes.CheckoutDeps{
		CheckoutHandler: api.NewCheckoutHandler(checkoutService, logger),
	})
	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		HealthHandler:  api.NewHealthHandler(pool, logger),
		MetricsHandler: metrics.Handler(),
	})

	logger.Debug("Routes registered", "routes", r.Routes())

	// ==========================================================================
	// Serve
	// ==========================================================================

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout must outlast a gateway checkout.
		WriteTimeout: cfg.Stripe.CheckoutTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting checkout server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down checkout server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// newGateway returns the Stripe gateway, or the in-memory gateway in
// development when no secret key is configured.
func newGateway(cfg *internal.Config, logger *slog.Logger) (billing.Gateway, error) {
	if cfg.Stripe.SecretKey == "" && cfg.Env == "dev" {
		logger.Warn("STRIPE_SECRET_KEY not set, using in-memory payment gateway")
		return billing.NewMockGateway(), nil
	}

	logger.Info("Initializing Stripe payment gateway...")
	stripeConfig := billing.StripeConfig{
		SecretKey:       cfg.Stripe.SecretKey,
		PublishableKey:  cfg.Stripe.PublishableKey,
		Currency:        cfg.Checkout.Currency,
		PollInterval:    cfg.Stripe.PollInterval,
		CheckoutTimeout: cfg.Stripe.CheckoutTimeout,
		HTTPClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &telemetry.HTTPTransport{},
		},
	}
	gateway, err := billing.NewStripeGateway(stripeConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Stripe gateway: %w", err)
	}
	logger.Info("Stripe payment gateway initialized", "test_mode", stripeConfig.IsTestMode())
	return gateway, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
