package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/paygate/internal/core/events"
	"github.com/frahmantamala/paygate/internal/metrics"
	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/frahmantamala/paygate/internal/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Delayer supplies the simulated refund latency.
type Delayer interface {
	RefundDelay() time.Duration
}

// Settler consumes the refund-processing-queue. Refunds always succeed.
type Settler struct {
	repo      Repository
	delayer   Delayer
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewSettler(repo Repository, delayer Delayer, publisher events.Publisher, logger *slog.Logger) *Settler {
	return &Settler{
		repo:      repo,
		delayer:   delayer,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
		tracer:    otel.Tracer("paygate/refund"),
	}
}

func (s *Settler) Handle(ctx context.Context, job *queue.Job) error {
	var sj SettlementJob
	if err := job.Decode(&sj); err != nil {
		return err
	}
	_, err := s.run(ctx, sj.RefundID, job.Attempts > 0)
	return err
}

func (s *Settler) Settle(ctx context.Context, refundID string) (*Refund, error) {
	return s.run(ctx, refundID, false)
}

func (s *Settler) run(ctx context.Context, refundID string, republish bool) (*Refund, error) {
	ctx, span := s.tracer.Start(ctx, "refund.Settle", trace.WithAttributes(attribute.String("refund.id", refundID)))
	defer span.End()

	r, err := s.settle(ctx, refundID, republish)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return r, nil
}

func (s *Settler) settle(ctx context.Context, refundID string, republish bool) (*Refund, error) {
	log := s.logger.With("refund_id", refundID)

	r, err := s.repo.GetByID(ctx, refundID)
	if err != nil {
		if errors.Is(err, ErrRefundNotFound) {
			return nil, queue.Permanent(err)
		}
		return nil, fmt.Errorf("load refund %s: %w", refundID, err)
	}
	if r.Status != StatusPending {
		if republish {
			log.Info("refund already processed, republishing outcome")
			return r, s.publish(ctx, r)
		}
		log.Info("refund already processed, skipping job")
		return r, nil
	}

	if err := payment.Sleep(ctx, s.delayer.RefundDelay()); err != nil {
		return nil, err
	}

	applied, err := s.repo.MarkProcessed(ctx, r.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("process refund %s: %w", r.ID, err)
	}
	if !applied {
		log.Warn("refund processed concurrently, skipping job")
		return s.repo.GetByID(ctx, r.ID)
	}

	processed, err := s.repo.GetByID(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("reload refund %s: %w", r.ID, err)
	}
	metrics.SettlementsTotal.WithLabelValues("refund", processed.Status).Inc()
	log.Info("refund processed", "payment_id", processed.PaymentID, "amount", processed.Amount)

	return processed, s.publish(ctx, processed)
}

func (s *Settler) publish(ctx context.Context, r *Refund) error {
	event := events.NewRefundProcessedEvent(r.MerchantID, r).
		WithKey(events.SettlementKey(events.EventTypeRefundProcessed, r.ID))
	if err := s.publisher.PublishSync(context.WithoutCancel(ctx), event); err != nil {
		return fmt.Errorf("publish refund.processed for %s: %w", r.ID, err)
	}
	return nil
}
