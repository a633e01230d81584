package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/creatorpay/creatorpay-backend/api/routes"
	"github.com/creatorpay/creatorpay-backend/internal/creators"
	"github.com/creatorpay/creatorpay-backend/internal/earnings"
	"github.com/creatorpay/creatorpay-backend/internal/payouts"
	"github.com/creatorpay/creatorpay-backend/internal/purchases"
	"github.com/creatorpay/creatorpay-backend/internal/webhooks/provider"
	"github.com/creatorpay/creatorpay-backend/pkg/config"
	"github.com/creatorpay/creatorpay-backend/pkg/db"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
	"github.com/creatorpay/creatorpay-backend/pkg/metrics"
	"github.com/creatorpay/creatorpay-backend/pkg/migrate"
	"github.com/creatorpay/creatorpay-backend/pkg/outbox"
	"github.com/creatorpay/creatorpay-backend/pkg/redis"
	"github.com/creatorpay/creatorpay-backend/pkg/storage/gcs"
	pkgstripe "github.com/creatorpay/creatorpay-backend/pkg/stripe"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs client", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	purchaseService, err := purchases.NewService(purchases.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase service", err)
		os.Exit(1)
	}

	earningService, err := earnings.NewService(earnings.NewRepository(dbClient.DB()), outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create earnings service", err)
		os.Exit(1)
	}

	payoutService, err := payouts.NewService(payouts.ServiceParams{
		DB:              dbClient,
		Repo:            payouts.NewRepository(dbClient.DB()),
		Creators:        creators.NewRepository(dbClient.DB()),
		Transfers:       payouts.NewTransferClient(stripeClient),
		Reporter:        payouts.NewReporter(gcsClient, cfg.Payout.ReportPrefix, cfg.GCS.DownloadURLExpiry, logg),
		Outbox:          outboxService,
		Metrics:         metrics.NewPayoutRunMetrics(prometheus.DefaultRegisterer),
		Logger:          logg,
		MinimumMinor:    cfg.Payout.MinimumMinor,
		TransferTimeout: cfg.Stripe.TransferTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}

	webhookService, err := provider.NewService(provider.ServiceParams{
		Purchases:         purchaseService,
		Earnings:          earningService,
		Settlement:        payoutService,
		Repo:              provider.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := provider.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, provider.ProviderStripe)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Stripe:       stripeClient,
			Payouts:      payoutService,
			Earnings:     earningService,
			Purchases:    purchaseService,
			Webhooks:     webhookService,
			WebhookGuard: webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
