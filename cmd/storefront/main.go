package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/joao-fontenele/storefront/internal/accounts"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/catalog"
	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/database"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/server"
	"github.com/joao-fontenele/storefront/internal/stock"
	"github.com/joao-fontenele/storefront/internal/telemetry"
	"github.com/joao-fontenele/storefront/internal/txscope"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.App.LogLevel),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("storefront stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.TracingEnabled {
		shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry, cfg.App.ServiceName, cfg.App.Version)
		if err != nil {
			return err
		}
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.App.ServiceName, cfg.App.Version)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	if err := runtime.Start(); err != nil {
		logger.Warn("runtime metrics unavailable", "error", err)
	}

	if cfg.DB.AutoMigrate {
		if err := database.MigrateUp(cfg.DB.URL); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	scope := txscope.New(db, logger, txscope.WithMaxAttempts(cfg.DB.TxMaxAttempts))
	ledger := stock.NewLedger()

	var factoryOpts []orders.FactoryOption
	if cfg.KafkaEnabled() {
		producer := messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderCreatedTopic)
		defer func() { _ = producer.Close() }()
		factoryOpts = append(factoryOpts, orders.WithPublisher(producer))
	}

	mux := server.NewMux(server.Handlers{
		Accounts: accounts.NewHandler(accounts.NewService(scope, logger), logger),
		Catalog:  catalog.NewHandler(catalog.New(scope), logger),
		Cart:     cart.NewHandler(cart.NewStore(scope, ledger, logger), logger),
		Orders: orders.NewHandler(
			orders.NewFactory(scope, ledger, logger, factoryOpts...),
			orders.NewHistory(scope),
			logger,
		),
		Metrics: metricsHandler,
	}, db, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      server.Instrument(mux, cfg.App.ServiceName),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting storefront", "port", cfg.HTTP.Port, "kafka", cfg.KafkaEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
