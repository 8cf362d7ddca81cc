package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/paygate/api"
	"github.com/frahmantamala/paygate/internal/idempotency"
	"github.com/frahmantamala/paygate/internal/merchant"
	"github.com/frahmantamala/paygate/internal/order"
	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/frahmantamala/paygate/internal/refund"
	"github.com/frahmantamala/paygate/internal/transport"
	"github.com/frahmantamala/paygate/internal/transport/middleware"
	"github.com/frahmantamala/paygate/internal/transport/rest"
	"github.com/frahmantamala/paygate/internal/webhook"
)

var withWorker bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long: `Start the merchant API. The API only produces jobs; run "paygate worker"
to settle payments and deliver webhooks, or pass --with-worker to run both in
one process (required with the memory queue backend).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

func init() {
	httpServerCmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run queue consumers and the retry poller in this process")
}

func startHTTPServer() error {
	deps, err := initializeDependencies()
	if err != nil {
		return err
	}
	defer deps.Close()

	router, err := buildRouter(deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if withWorker || deps.Config.Worker.Backend == "memory" {
		if err := startWorkers(ctx, deps); err != nil {
			return err
		}
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		deps.Logger.Info("starting HTTP server", "address", addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("received signal, shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
			return err
		}
	}

	deps.Logger.Info("server stopped")
	return nil
}

func buildRouter(deps *Dependencies) (*chi.Mux, error) {
	cfg := deps.Config
	lg := deps.Logger
	repos := deps.repositories()

	tokens := merchant.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration)
	merchantService := merchant.NewService(repos.merchants, tokens, cfg.Security.BCryptCost, lg)
	orderService := order.NewService(repos.orders, lg)
	cache := idempotency.NewCache(repos.idempotency, lg)
	paymentService := payment.NewService(repos.payments, repos.orders, cache, deps.Queue, repos.stats, lg)
	refundService := refund.NewService(repos.refunds, deps.Queue, lg)
	webhookService := webhook.NewService(repos.webhooks, deps.Queue, lg)

	checks := map[string]rest.Check{
		"postgres": deps.SQL.PingContext,
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}

	handlers := rest.Handlers{
		Merchant: merchant.NewHandler(merchantService),
		Order:    order.NewHandler(orderService),
		Payment:  payment.NewHandler(paymentService),
		Refund:   refund.NewHandler(refundService),
		Webhook:  webhook.NewHandler(webhookService),
		Jobs:     rest.NewJobsHandler(transport.NewBaseHandler(lg), deps.Queue),
		Health:   rest.NewHealthHandler(checks),
	}

	opts := rest.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		LogRequest:     true,
		Logger:         lg,
	}
	if cfg.Server.ValidateRequests {
		openAPI, err := middleware.LoadOpenAPIRouter(api.OpenAPI)
		if err != nil {
			return nil, err
		}
		opts.OpenAPI = openAPI
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, handlers, opts)
	if cfg.Observability.Metrics.Enabled {
		router.Handle(cfg.Observability.Metrics.Path, promhttp.Handler())
	}
	return router, nil
}
