package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/frahmantamala/paygate/internal/queue"
	"github.com/frahmantamala/paygate/internal/refund"
	"github.com/frahmantamala/paygate/internal/transport/rest"
	"github.com/frahmantamala/paygate/internal/webhook"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start queue consumers and the webhook retry poller",
	Long: `Consume the payment, refund, webhook-delivery and test queues, run the
webhook retry poller and expose Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker()
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "workers per queue (overrides config)")
}

func runWorker() error {
	deps, err := initializeDependencies()
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := startWorkers(ctx, deps); err != nil {
		return err
	}

	var metricsServer *http.Server
	if deps.Config.Observability.Metrics.Enabled && deps.Config.Worker.MetricsAddr != "" {
		metricsServer = startMetricsServer(deps)
	}

	deps.Logger.Info("worker is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	deps.Logger.Info("received signal, shutting down worker")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("metrics server shutdown error", "error", err)
		}
	}
	return nil
}

// startWorkers wires the settlement workers, the webhook producer and
// deliverer, and the retry poller. Everything stops when ctx is cancelled or
// the queue is closed.
func startWorkers(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger
	repos := deps.repositories()

	concurrency := cfg.Worker.Concurrency
	if workerConcurrency > 0 {
		concurrency = workerConcurrency
	}

	sim := payment.NewSimulator(payment.SimulatorConfig{
		TestMode:    cfg.Payment.TestMode,
		TestDelay:   cfg.Payment.TestProcessingDelay,
		TestSuccess: cfg.Payment.TestPaymentSuccess,
	})

	producer := webhook.NewProducer(repos.webhooks, deps.Queue, lg)
	producer.Register(deps.Bus)

	paymentSettler := payment.NewSettler(repos.payments, sim, deps.Bus, lg)
	refundSettler := refund.NewSettler(repos.refunds, sim, deps.Bus, lg)
	deliverer := webhook.NewDeliverer(repos.webhooks, repos.merchants, webhook.DeliveryConfig{
		Timeout:            cfg.Webhook.Timeout,
		MaxResponseBody:    cfg.Webhook.MaxResponseBody,
		ClaimTTL:           cfg.Webhook.ClaimTTL,
		TestRetryIntervals: cfg.Webhook.TestRetryIntervals,
	}, lg)

	consumers := []struct {
		queue       string
		concurrency int
		handler     queue.Handler
	}{
		{queue.PaymentSettlement, concurrency, paymentSettler.Handle},
		{queue.RefundSettlement, concurrency, refundSettler.Handle},
		{queue.WebhookDelivery, concurrency, deliverer.Handle},
		{queue.TestJobs, 1, pingHandler(lg)},
	}
	for _, c := range consumers {
		if err := deps.Queue.Consume(c.queue, c.concurrency, c.handler); err != nil {
			return err
		}
		lg.Info("consuming queue", "queue", c.queue, "concurrency", c.concurrency)
	}

	poller := webhook.NewPoller(repos.webhooks, deps.Queue, deps.locker(), webhook.PollerConfig{
		Interval:  cfg.Worker.PollInterval,
		BatchSize: cfg.Worker.PollBatchSize,
	}, lg)
	go poller.Run(ctx)

	lg.Info("workers started",
		"test_mode", cfg.Payment.TestMode,
		"webhook_test_retry_intervals", cfg.Webhook.TestRetryIntervals,
		"queue_backend", cfg.Worker.Backend)
	return nil
}

func pingHandler(lg *slog.Logger) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var ping rest.PingJob
		if err := job.Decode(&ping); err != nil {
			return err
		}
		lg.Info("test job processed", "job_id", job.ID, "message", ping.Message, "requested_at", ping.RequestedAt)
		return nil
	}
}

func startMetricsServer(deps *Dependencies) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(deps.Config.Observability.Metrics.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:              deps.Config.Worker.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		deps.Logger.Info("serving worker metrics", "address", srv.Addr, "path", deps.Config.Observability.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
