package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/paygate/internal/core/events"
	"github.com/frahmantamala/paygate/internal/metrics"
	"github.com/frahmantamala/paygate/internal/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Settler consumes the payment-processing-queue.
type Settler struct {
	repo      Repository
	sim       Simulation
	publisher events.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewSettler(repo Repository, sim Simulation, publisher events.Publisher, logger *slog.Logger) *Settler {
	return &Settler{
		repo:      repo,
		sim:       sim,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("paygate/payment"),
	}
}

func (s *Settler) Handle(ctx context.Context, job *queue.Job) error {
	var sj SettlementJob
	if err := job.Decode(&sj); err != nil {
		return err
	}
	// a retried job may find the payment settled by a run that failed to publish
	_, err := s.run(ctx, sj.PaymentID, job.Attempts > 0)
	return err
}

// Settle moves a pending payment to success or failed and publishes the
// outcome event. Already settled payments are returned untouched.
func (s *Settler) Settle(ctx context.Context, paymentID string) (*Payment, error) {
	return s.run(ctx, paymentID, false)
}

func (s *Settler) run(ctx context.Context, paymentID string, republish bool) (*Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Settle", trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer span.End()

	p, err := s.settle(ctx, paymentID, republish)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.status", p.Status))
	return p, nil
}

func (s *Settler) settle(ctx context.Context, paymentID string, republish bool) (*Payment, error) {
	log := s.logger.With("payment_id", paymentID)

	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, queue.Permanent(err)
		}
		return nil, fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	if p.Status != StatusPending {
		if republish {
			log.Info("payment already settled, republishing outcome", "status", p.Status)
			return p, s.publish(ctx, p)
		}
		log.Info("payment already settled, skipping job", "status", p.Status)
		return p, nil
	}

	delay := s.sim.PaymentDelay()
	if err := Sleep(ctx, delay); err != nil {
		return nil, err
	}

	settlement := Settlement{Status: StatusSuccess}
	if !s.sim.Succeeds(p.Method) {
		code, desc := FailureCode, FailureDescription
		settlement = Settlement{Status: StatusFailed, ErrorCode: &code, ErrorDescription: &desc}
	}

	applied, err := s.repo.Settle(ctx, p.ID, settlement)
	if err != nil {
		return nil, fmt.Errorf("settle payment %s: %w", p.ID, err)
	}
	if !applied {
		log.Warn("payment settled concurrently, skipping job")
		return s.repo.GetByID(ctx, p.ID)
	}

	settled, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("reload payment %s: %w", p.ID, err)
	}
	metrics.SettlementsTotal.WithLabelValues("payment", settled.Status).Inc()
	log.Info("payment settled", "status", settled.Status, "method", settled.Method, "delay", delay)

	return settled, s.publish(ctx, settled)
}

// publish announces a settled payment. Failures are retryable: the webhook
// producer keys its log on the settlement, so a republish makes no duplicate.
func (s *Settler) publish(ctx context.Context, p *Payment) error {
	eventType := events.EventTypePaymentSuccess
	if p.Status == StatusFailed {
		eventType = events.EventTypePaymentFailed
	}
	event := events.NewPaymentEvent(eventType, p.MerchantID, p).WithKey(events.SettlementKey(eventType, p.ID))
	// the payment is already final, finish announcing it across shutdown
	if err := s.publisher.PublishSync(context.WithoutCancel(ctx), event); err != nil {
		return fmt.Errorf("publish %s for %s: %w", eventType, p.ID, err)
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
