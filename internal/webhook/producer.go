package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/paygate/internal/core/events"
	"github.com/frahmantamala/paygate/internal/queue"
	"github.com/google/uuid"
)

// Producer turns merchant events into a durable log row plus a delivery job.
// The row always exists before the job is enqueued.
type Producer struct {
	repo   Repository
	queue  queue.Queue
	now    func() time.Time
	logger *slog.Logger
}

func NewProducer(repo Repository, q queue.Queue, logger *slog.Logger) *Producer {
	return &Producer{
		repo:   repo,
		queue:  q,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Register subscribes the producer to every merchant event type.
func (p *Producer) Register(bus *events.EventBus) {
	for _, eventType := range events.MerchantEventTypes {
		bus.Subscribe(eventType, p.HandleEvent)
	}
}

func (p *Producer) HandleEvent(ctx context.Context, e events.Event) error {
	me, ok := e.(*events.MerchantEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", e, e.EventType())
	}
	var err error
	if me.Key != "" {
		_, err = p.ProduceOnce(ctx, me.Key, me.MerchantID, me.EventType(), me.Data)
	} else {
		_, err = p.Produce(ctx, me.MerchantID, me.EventType(), me.Data)
	}
	return err
}

func (p *Producer) Produce(ctx context.Context, merchantID, event string, data interface{}) (*Log, error) {
	return p.produce(ctx, uuid.NewString(), merchantID, event, data)
}

// ProduceOnce is Produce with a log ID derived from key. Calls repeating a
// key return the existing row and leave it due for the poller.
func (p *Producer) ProduceOnce(ctx context.Context, key, merchantID, event string, data interface{}) (*Log, error) {
	return p.produce(ctx, LogIDForKey(key), merchantID, event, data)
}

// LogIDForKey maps a deduplication key to its webhook log ID.
func LogIDForKey(key string) string {
	return uuid.NewSHA1(logKeySpace, []byte(key)).String()
}

var logKeySpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("paygate:webhook-log"))

func (p *Producer) produce(ctx context.Context, id, merchantID, event string, data interface{}) (*Log, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}

	row := &Log{
		ID:         id,
		MerchantID: merchantID,
		Event:      event,
		Payload:    payload,
		Status:     StatusPending,
		Attempts:   0,
	}
	created, err := p.repo.CreateIfAbsent(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("create webhook log: %w", err)
	}
	if !created {
		p.logger.Info("webhook already produced", "webhook_log_id", id, "event", event)
		if err := p.repo.MarkDue(ctx, id, p.now()); err != nil {
			return nil, fmt.Errorf("mark webhook log due: %w", err)
		}
		return p.repo.GetByID(ctx, id)
	}

	_, err = p.queue.Enqueue(ctx, queue.WebhookDelivery, DeliveryJob{
		WebhookLogID: row.ID,
		MerchantID:   merchantID,
		Event:        event,
		Payload:      payload,
	})
	if err != nil {
		// The poller picks the row up once it is due.
		p.logger.Warn("failed to enqueue webhook delivery, leaving it to the retry poller",
			"webhook_log_id", row.ID,
			"error", err)
		now := p.now()
		if merr := p.repo.MarkDue(ctx, row.ID, now); merr != nil {
			return nil, fmt.Errorf("enqueue webhook delivery: %w", err)
		}
		row.NextRetryAt = &now
	}

	p.logger.Info("webhook produced", "webhook_log_id", row.ID, "merchant_id", merchantID, "event", event)
	return row, nil
}
