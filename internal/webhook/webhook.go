package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	webhookDatamodel "github.com/frahmantamala/paygate/internal/core/datamodel/webhook"
)

type Log = webhookDatamodel.Log

const (
	StatusPending = webhookDatamodel.StatusPending
	StatusSuccess = webhookDatamodel.StatusSuccess
	StatusFailed  = webhookDatamodel.StatusFailed
)

var (
	ErrLogNotFound = errors.New("webhook log not found")
	// ErrConcurrentUpdate means another worker recorded an attempt first.
	ErrConcurrentUpdate = errors.New("webhook log changed concurrently")
)

// DeliveryJob is the payload of a webhook-delivery-queue job. WebhookLogID is
// empty only for inline jobs, whose log row is created on first delivery.
type DeliveryJob struct {
	WebhookLogID string          `json:"webhookLogId,omitempty"`
	MerchantID   string          `json:"merchantId"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
}

// AttemptResult is persisted after every delivery attempt.
type AttemptResult struct {
	Status       string
	Attempts     int
	ResponseCode *int
	ResponseBody *string
	AttemptedAt  time.Time
	NextRetryAt  *time.Time
}

type Repository interface {
	Create(ctx context.Context, log *Log) error
	// CreateIfAbsent inserts log unless a row with its ID exists and reports
	// whether it inserted.
	CreateIfAbsent(ctx context.Context, log *Log) (bool, error)
	GetByID(ctx context.Context, id string) (*Log, error)
	GetForMerchant(ctx context.Context, id, merchantID string) (*Log, error)
	ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*Log, int64, error)
	// Claim leases a pending, due and unclaimed row until the given time and
	// marks a row without a retry time as due now.
	Claim(ctx context.Context, id string, now, until time.Time) (bool, error)
	Release(ctx context.Context, id string) error
	// RecordAttempt writes the result only if attempts still equals expectedAttempts.
	RecordAttempt(ctx context.Context, id string, expectedAttempts int, result AttemptResult) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Log, error)
	// MarkDue makes a pending row without a retry time due at the given time.
	MarkDue(ctx context.Context, id string, at time.Time) error
	ResetForRetry(ctx context.Context, id, merchantID string, now time.Time) (bool, error)
}
