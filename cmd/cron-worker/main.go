package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/creatorpay/creatorpay-backend/internal/creators"
	"github.com/creatorpay/creatorpay-backend/internal/cron"
	"github.com/creatorpay/creatorpay-backend/internal/payouts"
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
)

const lockKeyFormat = "cp:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

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

	payoutBatchJob, err := cron.NewPayoutBatchJob(cron.PayoutBatchJobParams{
		Logger:     logg,
		Payouts:    payoutService,
		PeriodDays: cfg.Payout.PeriodDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout batch job", err)
		os.Exit(1)
	}

	payoutReportJob, err := cron.NewPayoutReportJob(cron.PayoutReportJobParams{
		Logger:  logg,
		Payouts: payoutService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout report job", err)
		os.Exit(1)
	}

	webhookRetentionJob, err := cron.NewWebhookRetentionJob(cron.WebhookRetentionJobParams{
		Logger:     logg,
		Repository: provider.NewRepository(dbClient.DB()),
		Retention:  cfg.Webhook.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook retention job", err)
		os.Exit(1)
	}

	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(payoutBatchJob, payoutReportJob, webhookRetentionJob, outboxRetentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Payout.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
