package main

import (
	"context"
	"log/slog"

	"bike-storefront/internal/config"
	"bike-storefront/internal/database"
	"bike-storefront/internal/infrastructure/events"
	"bike-storefront/internal/infrastructure/payment"
	"bike-storefront/internal/logkey"
	"bike-storefront/internal/metrics"
	"bike-storefront/internal/repo"
	"bike-storefront/internal/service"
	"bike-storefront/internal/worker"
)

// app holds every long-lived dependency built from one Config.
type app struct {
	cfg       *config.Config
	db        database.Service
	gateway   payment.PaymentGateway
	publisher events.Publisher
	metrics   *metrics.Metrics

	orderRepo repo.OrderRepo
	bikeRepo  repo.BikeRepo
	userRepo  repo.UserRepo

	orders  service.OrderService
	catalog service.CatalogService
}

// newApp loads config and connects to the database. gateway may be nil to
// use the configured provider.
func newApp(ctx context.Context, gateway payment.PaymentGateway) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.LogLevel)

	if gateway == nil {
		if gateway, err = payment.New(cfg.Payment); err != nil {
			return nil, err
		}
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		db:        db,
		gateway:   gateway,
		publisher: events.NewPublisher(cfg.Kafka),
		metrics:   metrics.New(),
		orderRepo: repo.NewOrderRepo(db.DB()),
		bikeRepo:  repo.NewBikeRepo(db.DB()),
		userRepo:  repo.NewUserRepo(db.DB()),
	}
	a.orders = service.NewOrderService(
		repo.NewTxManager(db.DB()),
		a.orderRepo,
		a.bikeRepo,
		a.userRepo,
		repo.NewPaymentRepo(db.DB()),
		gateway,
		a.publisher,
		service.OrderOptions{Currency: cfg.Payment.Currency, GatewayTimeout: cfg.Payment.Timeout},
	)
	a.catalog = service.NewCatalogService(a.bikeRepo)

	slog.Info("storefront initialised",
		slog.String("payment_provider", cfg.Payment.Provider),
		slog.Bool("kafka", cfg.Kafka.Enabled()))
	return a, nil
}

func (a *app) worker() *worker.ReconciliationWorker {
	return worker.NewReconciliationWorker(a.orderRepo, a.orders, a.metrics.Reconcile, worker.Options{
		Interval:   a.cfg.Worker.Interval,
		StuckAfter: a.cfg.Worker.StuckAfter,
		BatchSize:  a.cfg.Worker.BatchSize,
	})
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		slog.Warn("closing event publisher", slog.String(logkey.ERROR, err.Error()))
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("closing database", slog.String(logkey.ERROR, err.Error()))
	}
}
