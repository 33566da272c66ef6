// Command server runs the payment backend: checkout initialization, payment
// verification, gateway webhooks and receipt delivery.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/masterco/lahza-server/internal/circuitbreaker"
	"github.com/masterco/lahza-server/internal/config"
	"github.com/masterco/lahza-server/internal/httpserver"
	"github.com/masterco/lahza-server/internal/lahza"
	"github.com/masterco/lahza-server/internal/lifecycle"
	"github.com/masterco/lahza-server/internal/logger"
	"github.com/masterco/lahza-server/internal/metrics"
	"github.com/masterco/lahza-server/internal/offers"
	"github.com/masterco/lahza-server/internal/payments"
	"github.com/masterco/lahza-server/internal/recaptcha"
	"github.com/masterco/lahza-server/internal/receipts"
	"github.com/masterco/lahza-server/internal/reconcile"
	"github.com/masterco/lahza-server/internal/settings"
)

const version = "1.2.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "lahza-server",
		Version:     version,
		Environment: cfg.Logging.Environment,
	})

	resources := lifecycle.NewManager()
	defer func() {
		if err := resources.Close(); err != nil {
			appLogger.Error().Err(err).Msg("resource cleanup failed")
		}
	}()

	breakers := circuitbreaker.NewManager(breakerConfig(cfg.CircuitBreaker))

	repo, settingsRepo, err := buildStorage(cfg, resources)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("storage init failed")
	}

	bootstrapCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := settingsRepo.Bootstrap(bootstrapCtx, settings.Settings{
		ActiveSale:      cfg.Sale.ActiveSale,
		CheckoutEnabled: cfg.Sale.CheckoutEnabled,
		DefaultCurrency: cfg.Sale.DefaultCurrency,
	}); err != nil {
		cancel()
		appLogger.Fatal().Err(err).Msg("settings bootstrap failed")
	}
	cancel()

	catalog := offers.Empty()
	if cfg.Offers.CatalogPath != "" {
		catalog, err = offers.LoadCatalog(cfg.Offers.CatalogPath)
		if err != nil {
			appLogger.Fatal().Err(err).Str("path", cfg.Offers.CatalogPath).Msg("offer catalog load failed")
		}
		appLogger.Info().Int("offers", len(catalog.List())).Msg("offer catalog loaded")
	}

	gateway := lahza.NewClient(lahza.Config{
		BaseURL:   cfg.Lahza.BaseURL,
		SecretKey: cfg.Lahza.SecretKey,
		Timeout:   cfg.Lahza.Timeout.Duration,
	}, breakers)

	captcha := recaptcha.New(recaptcha.Config{
		Enabled:   cfg.Recaptcha.Enabled,
		SecretKey: cfg.Recaptcha.SecretKey,
		VerifyURL: cfg.Recaptcha.VerifyURL,
		Timeout:   cfg.Recaptcha.Timeout.Duration,
	}, breakers)

	var receiptQueue reconcile.ReceiptQueue
	if cfg.Receipts.Enabled {
		outbox := receipts.NewOutbox(receipts.NewSMTPNotifier(cfg.Receipts), receipts.OutboxConfig{
			QueueSize:     cfg.Receipts.QueueSize,
			MaxAttempts:   cfg.Receipts.MaxAttempts,
			RetryInterval: cfg.Receipts.RetryInterval.Duration,
		})
		outbox.Start()
		resources.Register("receipt-outbox", outbox)
		receiptQueue = outbox
	}

	metricsCollector := metrics.New()

	service := reconcile.NewService(
		reconcile.Config{PublicBaseURL: cfg.Server.PublicBaseURL},
		repo, gateway, captcha, receiptQueue, settingsRepo, catalog, metricsCollector)

	server := httpserver.New(cfg, service, catalog, metricsCollector, appLogger)

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info().
			Str("address", cfg.Server.Address).
			Str("storage", cfg.Storage.Backend).
			Bool("recaptcha", cfg.Recaptcha.Enabled).
			Bool("receipts", cfg.Receipts.Enabled).
			Msg("server starting")
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		appLogger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error().Err(err).Msg("server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildStorage selects the payment and settings repositories for the
// configured backend and registers their cleanup.
func buildStorage(cfg *config.Config, resources *lifecycle.Manager) (payments.Repository, settings.Repository, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		config.ApplyPostgresPoolSettings(db, cfg.Storage.PostgresPool)
		resources.Register("postgres", db)

		repo, err := payments.NewPostgresRepositoryWithDB(db)
		if err != nil {
			return nil, nil, err
		}
		repo.WithTableName(cfg.Storage.PaymentsTable)

		settingsRepo, err := settings.NewPostgresRepository(db, cfg.Storage.SettingsTable)
		if err != nil {
			return nil, nil, err
		}
		return repo, settingsRepo, nil

	case "mongodb":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		repo, err := payments.NewMongoRepository(ctx, cfg.Storage.MongoDBURL, cfg.Storage.MongoDBDatabase, cfg.Storage.MongoDBCollection)
		if err != nil {
			return nil, nil, err
		}
		resources.Register("mongodb", repo)
		// Sale settings stay config-driven on the document backend; they are
		// re-seeded from YAML/env on every start.
		return repo, settings.NewMemoryRepository(), nil

	default:
		repo := payments.NewMemoryRepository()
		resources.Register("payments-store", repo)
		return repo, settings.NewMemoryRepository(), nil
	}
}

func breakerConfig(cfg config.CircuitBreakerConfig) circuitbreaker.Config {
	out := circuitbreaker.DefaultConfig()
	out.Enabled = cfg.Enabled
	applyBreaker(&out.LahzaAPI, cfg.LahzaAPI)
	applyBreaker(&out.Recaptcha, cfg.Recaptcha)
	return out
}

func applyBreaker(dst *circuitbreaker.BreakerConfig, src config.BreakerServiceConfig) {
	if src.MaxRequests > 0 {
		dst.MaxRequests = src.MaxRequests
	}
	if src.Interval.Duration > 0 {
		dst.Interval = src.Interval.Duration
	}
	if src.Timeout.Duration > 0 {
		dst.Timeout = src.Timeout.Duration
	}
	if src.ConsecutiveFailures > 0 {
		dst.ConsecutiveFailures = src.ConsecutiveFailures
	}
	if src.FailureRatio > 0 {
		dst.FailureRatio = src.FailureRatio
	}
	if src.MinRequests > 0 {
		dst.MinRequests = src.MinRequests
	}
}
