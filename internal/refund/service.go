package refund

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/core/common/ids"
	"github.com/frahmantamala/paygate/internal/core/common/validation"
	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/frahmantamala/paygate/internal/queue"
)

type Service struct {
	repo   Repository
	queue  queue.Queue
	logger *slog.Logger
}

func NewService(repo Repository, q queue.Queue, logger *slog.Logger) *Service {
	return &Service{repo: repo, queue: q, logger: logger}
}

func (s *Service) Create(ctx context.Context, merchantID, paymentID string, dto CreateRefundDTO) (*Refund, error) {
	if err := validation.ValidateAmount(dto.Amount); err != nil {
		return nil, err
	}
	if dto.Reason != nil {
		v := validation.NewValidator()
		v.Field("reason", *dto.Reason).MaxLength(255)
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	id, err := ids.Refund()
	if err != nil {
		return nil, internal.NewInternalError("Failed to create refund", err)
	}

	r := &Refund{
		ID:         id,
		PaymentID:  paymentID,
		MerchantID: merchantID,
		Amount:     dto.Amount,
		Reason:     dto.Reason,
		Status:     StatusPending,
	}

	if err := s.repo.CreateWithinLimit(ctx, r); err != nil {
		var exceeds *ExceedsRemainingError
		switch {
		case errors.Is(err, payment.ErrPaymentNotFound):
			return nil, internal.NewNotFoundError("Payment not found")
		case errors.Is(err, ErrNotRefundable):
			return nil, internal.NewBadRequestError("Payment not refundable")
		case errors.As(err, &exceeds):
			return nil, internal.NewBadRequestError("Refund amount exceeds available amount")
		default:
			return nil, internal.NewInternalError("Failed to create refund", err)
		}
	}

	if _, err := s.queue.Enqueue(ctx, queue.RefundSettlement, SettlementJob{RefundID: r.ID}); err != nil {
		s.logger.Error("failed to enqueue refund settlement", "refund_id", r.ID, "error", err)
		if derr := s.repo.Delete(context.WithoutCancel(ctx), r.ID); derr != nil {
			s.logger.Error("failed to remove unqueued refund", "refund_id", r.ID, "error", derr)
		}
		return nil, internal.NewUnavailableError("Refund processing is temporarily unavailable", err)
	}

	s.logger.Info("refund created",
		"refund_id", r.ID,
		"payment_id", paymentID,
		"merchant_id", merchantID,
		"amount", r.Amount)
	return r, nil
}

func (s *Service) Get(ctx context.Context, merchantID, id string) (*Refund, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRefundNotFound) {
			return nil, internal.NewNotFoundError("Refund not found")
		}
		return nil, internal.NewInternalError("Failed to load refund", err)
	}
	if r.MerchantID != merchantID {
		return nil, internal.NewNotFoundError("Refund not found")
	}
	return r, nil
}
