package rest

import (
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/routers"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/paygate/internal/merchant"
	"github.com/frahmantamala/paygate/internal/order"
	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/frahmantamala/paygate/internal/refund"
	"github.com/frahmantamala/paygate/internal/transport/middleware"
	"github.com/frahmantamala/paygate/internal/transport/swagger"
	"github.com/frahmantamala/paygate/internal/webhook"
)

type Handlers struct {
	Merchant *merchant.Handler
	Order    *order.Handler
	Payment  *payment.Handler
	Refund   *refund.Handler
	Webhook  *webhook.Handler
	Jobs     *JobsHandler
	Health   *HealthHandler
}

type Options struct {
	AllowedOrigins string
	// OpenAPI enables request validation when set.
	OpenAPI    routers.Router
	LogRequest bool
	Logger     *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options) {
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(opts.Logger))
	if opts.LogRequest {
		router.Use(middleware.LoggingMiddleware(opts.Logger))
	}

	validate := func(next http.Handler) http.Handler { return next }
	if opts.OpenAPI != nil {
		validate = middleware.ValidateRequests(opts.OpenAPI, opts.Logger)
	}

	router.Get(swagger.SpecPath, swagger.SpecHandler)
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health.healthCheckHandler)
		r.Get("/ping", h.Health.pingHandler)

		if h.Jobs != nil {
			r.Get("/test/jobs/status", h.Jobs.Status)
			r.Post("/test/jobs", h.Jobs.EnqueuePing)
		}

		r.Group(func(pub chi.Router) {
			pub.Use(validate)
			pub.Post("/auth/token", h.Merchant.IssueToken)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Merchant.AuthMiddleware)
			pr.Use(validate)

			pr.Get("/merchants/me", h.Merchant.Me)
			pr.Put("/merchants/me/webhook", h.Merchant.UpdateWebhook)

			pr.Post("/orders", h.Order.Create)
			pr.Get("/orders/{order_id}", h.Order.Get)

			pr.Route("/payments", func(pmr chi.Router) {
				pmr.Post("/", h.Payment.Create)
				pmr.Get("/", h.Payment.List)
				pmr.Get("/{payment_id}", h.Payment.Get)
				pmr.Post("/{payment_id}/capture", h.Payment.Capture)
				pmr.Post("/{payment_id}/refunds", h.Refund.Create)
			})
			pr.Get("/refunds/{refund_id}", h.Refund.Get)

			pr.Get("/webhooks", h.Webhook.List)
			pr.Get("/webhooks/{webhook_id}", h.Webhook.Get)
			pr.Post("/webhooks/{webhook_id}/retry", h.Webhook.Retry)

			pr.Get("/dashboard/stats", h.Payment.Stats)
		})
	})
}
