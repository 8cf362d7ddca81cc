package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/frahmantamala/paygate/internal/merchant"
	"github.com/frahmantamala/paygate/internal/metrics"
	"github.com/frahmantamala/paygate/internal/queue"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Outcome string

const (
	OutcomeDelivered Outcome = "success"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	// OutcomeBusy means the row was in flight elsewhere, not due, or final.
	OutcomeBusy Outcome = "busy"
)

type Result struct {
	Outcome      Outcome
	LogID        string
	Attempts     int
	ResponseCode *int
	NextRetryAt  *time.Time
}

type DeliveryConfig struct {
	Timeout            time.Duration
	MaxResponseBody    int
	ClaimTTL           time.Duration
	TestRetryIntervals bool
}

// Deliverer consumes the webhook-delivery-queue.
type Deliverer struct {
	repo      Repository
	merchants merchant.Directory
	client    *http.Client
	schedule  Schedule
	timeout   time.Duration
	maxBody   int
	claimTTL  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewDeliverer(repo Repository, merchants merchant.Directory, cfg DeliveryConfig, logger *slog.Logger) *Deliverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = 4096
	}
	if cfg.ClaimTTL < 2*cfg.Timeout {
		cfg.ClaimTTL = 2 * cfg.Timeout
	}
	return &Deliverer{
		repo:      repo,
		merchants: merchants,
		client:    &http.Client{},
		schedule:  NewSchedule(cfg.TestRetryIntervals),
		timeout:   cfg.Timeout,
		maxBody:   cfg.MaxResponseBody,
		claimTTL:  cfg.ClaimTTL,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
		tracer:    otel.Tracer("paygate/webhook"),
	}
}

// WithClock replaces the time source.
func (d *Deliverer) WithClock(now func() time.Time) *Deliverer {
	d.now = now
	return d
}

// WithHTTPClient replaces the outbound client.
func (d *Deliverer) WithHTTPClient(c *http.Client) *Deliverer {
	d.client = c
	return d
}

// Handle is the queue.Handler for webhook delivery jobs. Delivery failures are
// recorded on the log row; only infrastructure errors are returned.
func (d *Deliverer) Handle(ctx context.Context, job *queue.Job) error {
	var dj DeliveryJob
	if err := job.Decode(&dj); err != nil {
		return err
	}
	_, err := d.Deliver(ctx, dj)
	return err
}

func (d *Deliverer) Deliver(ctx context.Context, job DeliveryJob) (*Result, error) {
	ctx, span := d.tracer.Start(ctx, "webhook.Deliver", trace.WithAttributes(
		attribute.String("webhook.log_id", job.WebhookLogID),
		attribute.String("webhook.event", job.Event),
		attribute.String("merchant.id", job.MerchantID),
	))
	defer span.End()

	res, err := d.deliver(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("webhook.outcome", string(res.Outcome)), attribute.Int("webhook.attempts", res.Attempts))
	if res.Outcome != OutcomeBusy {
		metrics.WebhookDeliveriesTotal.WithLabelValues(job.Event, string(res.Outcome)).Inc()
	}
	return res, nil
}

func (d *Deliverer) deliver(ctx context.Context, job DeliveryJob) (*Result, error) {
	log := d.logger.With("webhook_log_id", job.WebhookLogID, "merchant_id", job.MerchantID, "event", job.Event)

	m, err := d.merchants.GetByID(ctx, job.MerchantID)
	if err != nil && !errors.Is(err, merchant.ErrMerchantNotFound) {
		return nil, fmt.Errorf("resolve merchant %s: %w", job.MerchantID, err)
	}
	if m == nil || !m.WebhookConfigured() {
		log.Info("webhook skipped: merchant has no webhook configured")
		return &Result{Outcome: OutcomeSkipped, LogID: job.WebhookLogID}, nil
	}

	row, err := d.resolveLog(ctx, job)
	if err != nil {
		return nil, err
	}
	log = log.With("webhook_log_id", row.ID)

	now := d.now()
	claimed, err := d.repo.Claim(ctx, row.ID, now, now.Add(d.claimTTL))
	if err != nil {
		return nil, fmt.Errorf("claim webhook log %s: %w", row.ID, err)
	}
	if !claimed {
		log.Debug("webhook log not claimable, skipping job")
		return &Result{Outcome: OutcomeBusy, LogID: row.ID, Attempts: row.Attempts}, nil
	}

	body, err := BuildBody(row.Event, now, row.Payload)
	if err != nil {
		d.release(ctx, log, row.ID)
		return nil, queue.Permanent(fmt.Errorf("build webhook body: %w", err))
	}

	code, text, ok := d.post(ctx, *m.WebhookURL, *m.WebhookSecret, row.Event, body)
	if err := ctx.Err(); err != nil && !ok {
		// Interrupted before an outcome was known; the attempt does not count.
		d.release(ctx, log, row.ID)
		return nil, err
	}

	attemptedAt := d.now()
	result := AttemptResult{
		Attempts:     row.Attempts + 1,
		ResponseCode: code,
		ResponseBody: &text,
		AttemptedAt:  attemptedAt,
	}

	outcome := OutcomeDelivered
	switch {
	case ok:
		result.Status = StatusSuccess
	default:
		if delay, more := d.schedule.Delay(result.Attempts + 1); more {
			next := attemptedAt.Add(delay)
			result.Status = StatusPending
			result.NextRetryAt = &next
			outcome = OutcomeRetry
		} else {
			result.Status = StatusFailed
			outcome = OutcomeFailed
		}
	}

	if err := d.repo.RecordAttempt(context.WithoutCancel(ctx), row.ID, row.Attempts, result); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			log.Warn("webhook attempt superseded by a concurrent update")
			return &Result{Outcome: OutcomeBusy, LogID: row.ID}, nil
		}
		d.release(ctx, log, row.ID)
		return nil, fmt.Errorf("record webhook attempt %s: %w", row.ID, err)
	}

	log.Info("webhook attempt recorded",
		"status", result.Status,
		"attempts", result.Attempts,
		"response_code", code,
		"next_retry_at", result.NextRetryAt)

	return &Result{
		Outcome:      outcome,
		LogID:        row.ID,
		Attempts:     result.Attempts,
		ResponseCode: code,
		NextRetryAt:  result.NextRetryAt,
	}, nil
}

// release drops the claim so the row is due again right away. If it fails the
// claim still expires and the poller picks the row up.
func (d *Deliverer) release(ctx context.Context, log *slog.Logger, id string) {
	if err := d.repo.Release(context.WithoutCancel(ctx), id); err != nil {
		log.Warn("failed to release webhook log claim", "error", err)
	}
}

// resolveLog loads the job's log row, creating it for inline jobs.
func (d *Deliverer) resolveLog(ctx context.Context, job DeliveryJob) (*Log, error) {
	if job.WebhookLogID != "" {
		row, err := d.repo.GetByID(ctx, job.WebhookLogID)
		if err != nil {
			if errors.Is(err, ErrLogNotFound) {
				return nil, queue.Permanent(err)
			}
			return nil, fmt.Errorf("load webhook log %s: %w", job.WebhookLogID, err)
		}
		return row, nil
	}

	row := &Log{
		ID:         uuid.NewString(),
		MerchantID: job.MerchantID,
		Event:      job.Event,
		Payload:    []byte(job.Payload),
		Status:     StatusPending,
	}
	if len(row.Payload) == 0 {
		row.Payload = []byte("{}")
	}
	if err := d.repo.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("create webhook log: %w", err)
	}
	return row, nil
}

// post sends one signed request. ok is true for any 2xx response.
func (d *Deliverer) post(ctx context.Context, url, secret, event string, body []byte) (code *int, text string, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.WebhookDeliveryDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, d.bound(err.Error()), false
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set(SignatureHeader, Sign(body, secret))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, d.bound(err.Error()), false
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(d.maxBody)))
	if err != nil {
		d.logger.Warn("failed to read webhook response body", "error", err)
	}

	status := resp.StatusCode
	return &status, d.bound(string(raw)), status >= 200 && status < 300
}

// bound keeps stored response text within the size limit and storable as text.
func (d *Deliverer) bound(s string) string {
	s = strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "")
	if len(s) > d.maxBody {
		s = strings.ToValidUTF8(s[:d.maxBody], "")
	}
	return s
}
