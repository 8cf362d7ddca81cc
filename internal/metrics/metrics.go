package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SettlementsTotal counts settled payments and refunds by outcome.
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_settlements_total",
			Help: "Settled payments and refunds by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// WebhookDeliveriesTotal counts delivery attempts by event and result
	// (success, retry, failed, skipped).
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_webhook_deliveries_total",
			Help: "Webhook delivery attempts by event and result.",
		},
		[]string{"event", "result"},
	)

	WebhookDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paygate_webhook_delivery_duration_seconds",
			Help:    "Latency of outbound webhook requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"event"},
	)

	// QueueJobsTotal counts finished jobs by queue and result
	// (completed, retried, failed).
	QueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_queue_jobs_total",
			Help: "Jobs processed by queue and result.",
		},
		[]string{"queue", "result"},
	)

	RetryPollerEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paygate_retry_poller_enqueued_total",
			Help: "Due webhook logs re-enqueued by the retry poller.",
		},
	)
)
