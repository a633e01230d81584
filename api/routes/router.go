package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/creatorpay/creatorpay-backend/api/controllers"
	webhookcontrollers "github.com/creatorpay/creatorpay-backend/api/controllers/webhooks"
	"github.com/creatorpay/creatorpay-backend/api/middleware"
	internalearnings "github.com/creatorpay/creatorpay-backend/internal/earnings"
	internalpayouts "github.com/creatorpay/creatorpay-backend/internal/payouts"
	internalpurchases "github.com/creatorpay/creatorpay-backend/internal/purchases"
	"github.com/creatorpay/creatorpay-backend/internal/webhooks/provider"
	"github.com/creatorpay/creatorpay-backend/pkg/config"
	"github.com/creatorpay/creatorpay-backend/pkg/db"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
	"github.com/creatorpay/creatorpay-backend/pkg/redis"
	"github.com/creatorpay/creatorpay-backend/pkg/stripe"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *db.Client
	Redis        *redis.Client
	Stripe       *stripe.Client
	Payouts      internalpayouts.Service
	Earnings     internalearnings.Service
	Purchases    internalpurchases.Service
	Webhooks     webhookcontrollers.StripeWebhookService
	WebhookGuard *provider.IdempotencyGuard
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	dashboardPolicy := middleware.NewRateLimitPolicy(
		"dashboard",
		cfg.RateLimit.DashboardWindow,
		cfg.RateLimit.DashboardIPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, params.DB, params.Redis, logg))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.Webhooks, params.Stripe, params.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.With(middleware.RateLimit(dashboardPolicy, params.Redis, logg)).
			Get("/purchases/status", controllers.PurchaseStatus(params.Purchases, logg))

		r.Route("/creators/{creatorId}", func(r chi.Router) {
			r.Get("/payouts", controllers.CreatorPayoutHistory(params.Payouts, logg))
			r.Get("/earnings/summary", controllers.CreatorEarningsSummary(params.Earnings, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(params.Redis, logg))
		r.Get("/ping", controllers.AdminPing())

		r.Route("/payouts", func(r chi.Router) {
			r.Post("/run", controllers.AdminRunPayouts(params.Payouts, logg))
			r.Post("/{payoutId}/cancel", controllers.AdminCancelPayout(params.Payouts, logg))
		})
	})

	return r
}
