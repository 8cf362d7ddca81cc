package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/paygate/internal/lock"
	"github.com/frahmantamala/paygate/internal/metrics"
	"github.com/frahmantamala/paygate/internal/queue"
)

const pollerLockKey = "webhook-retry-poller"

type PollerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Poller re-enqueues pending logs whose next_retry_at has passed.
type Poller struct {
	repo     Repository
	queue    queue.Queue
	locker   lock.Locker
	interval time.Duration
	batch    int
	now      func() time.Time
	logger   *slog.Logger
}

func NewPoller(repo Repository, q queue.Queue, locker lock.Locker, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Poller{
		repo:     repo,
		queue:    q,
		locker:   locker,
		interval: cfg.Interval,
		batch:    cfg.BatchSize,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

func (p *Poller) WithClock(now func() time.Time) *Poller {
	p.now = now
	return p
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("webhook retry poller started", "interval", p.interval, "batch_size", p.batch)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("webhook retry poller stopped")
			return
		case <-ticker.C:
			if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("webhook retry poll failed", "error", err)
			}
		}
	}
}

// Tick enqueues one batch of due logs and returns how many were enqueued.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	if p.locker != nil {
		ok, err := p.locker.Acquire(ctx, pollerLockKey, p.interval*4/5)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
	}

	due, err := p.repo.ListDue(ctx, p.now(), p.batch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, row := range due {
		_, err := p.queue.Enqueue(ctx, queue.WebhookDelivery, DeliveryJob{
			WebhookLogID: row.ID,
			MerchantID:   row.MerchantID,
			Event:        row.Event,
			Payload:      []byte(row.Payload),
		})
		if err != nil {
			p.logger.Error("failed to enqueue due webhook", "webhook_log_id", row.ID, "error", err)
			continue
		}
		enqueued++
		metrics.RetryPollerEnqueued.Inc()
	}

	if enqueued > 0 {
		p.logger.Info("due webhooks enqueued", "count", enqueued)
	}
	return enqueued, nil
}
