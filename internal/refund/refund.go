package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	refundDatamodel "github.com/frahmantamala/paygate/internal/core/datamodel/refund"
)

type Refund = refundDatamodel.Refund

const (
	StatusPending   = refundDatamodel.StatusPending
	StatusProcessed = refundDatamodel.StatusProcessed
)

var (
	ErrRefundNotFound = errors.New("refund not found")
	// ErrNotRefundable means the payment is missing, foreign or not successful.
	ErrNotRefundable = errors.New("payment not refundable")
)

// ExceedsRemainingError reports a refund larger than what is left to refund.
type ExceedsRemainingError struct {
	Requested int64
	Remaining int64
}

func (e *ExceedsRemainingError) Error() string {
	return fmt.Sprintf("refund amount %d exceeds remaining %d", e.Requested, e.Remaining)
}

type Repository interface {
	// CreateWithinLimit inserts r only if the payment belongs to r.MerchantID,
	// is successful and has at least r.Amount left to refund.
	CreateWithinLimit(ctx context.Context, r *Refund) error
	GetByID(ctx context.Context, id string) (*Refund, error)
	// MarkProcessed applies only to pending refunds.
	MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
}

// SettlementJob is the payload of a refund-processing-queue job.
type SettlementJob struct {
	RefundID string `json:"refundId"`
}

type CreateRefundDTO struct {
	Amount int64   `json:"amount"`
	Reason *string `json:"reason,omitempty"`
}
