package payment

import (
	"context"
	"errors"

	paymentDatamodel "github.com/frahmantamala/paygate/internal/core/datamodel/payment"
)

type Payment = paymentDatamodel.Payment

const (
	StatusPending = paymentDatamodel.StatusPending
	StatusSuccess = paymentDatamodel.StatusSuccess
	StatusFailed  = paymentDatamodel.StatusFailed

	MethodUPI  = paymentDatamodel.MethodUPI
	MethodCard = paymentDatamodel.MethodCard
)

// Stored on failed payments.
const (
	FailureCode        = "PAYMENT_FAILED"
	FailureDescription = "Payment processing failed"
)

var ErrPaymentNotFound = errors.New("payment not found")

// Settlement is the terminal state written by the settlement worker.
type Settlement struct {
	Status           string
	ErrorCode        *string
	ErrorDescription *string
}

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	ListByMerchant(ctx context.Context, merchantID string) ([]*Payment, error)
	// Settle applies s only while the payment is still pending.
	Settle(ctx context.Context, id string, s Settlement) (bool, error)
	// MarkCaptured flips captured only on an uncaptured successful payment.
	MarkCaptured(ctx context.Context, id string) (bool, error)
}

// SettlementJob is the payload of a payment-processing-queue job.
type SettlementJob struct {
	PaymentID string `json:"paymentId"`
}

// Stats is the merchant dashboard summary.
type Stats struct {
	TotalTransactions int64   `json:"total_transactions"`
	TotalAmount       int64   `json:"total_amount"`
	SuccessRate       float64 `json:"success_rate"`
}

type StatsReader interface {
	ForMerchant(ctx context.Context, merchantID string) (*Stats, error)
}
