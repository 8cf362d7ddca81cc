package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/core/common/ids"
	"github.com/frahmantamala/paygate/internal/idempotency"
	"github.com/frahmantamala/paygate/internal/order"
	"github.com/frahmantamala/paygate/internal/queue"
)

// CreateResult carries the exact response body so replays are byte-identical.
type CreateResult struct {
	Body     []byte
	Replayed bool
}

type Service struct {
	repo   Repository
	orders order.Directory
	cache  *idempotency.Cache
	queue  queue.Queue
	stats  StatsReader
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo Repository, orders order.Directory, cache *idempotency.Cache, q queue.Queue, stats StatsReader, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		orders: orders,
		cache:  cache,
		queue:  q,
		stats:  stats,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Create validates the request, stores a pending payment and enqueues its
// settlement. With an idempotency key, a live cached response is replayed
// instead.
func (s *Service) Create(ctx context.Context, merchantID, idempotencyKey string, dto CreatePaymentDTO) (*CreateResult, error) {
	if cached, hit, err := s.cache.Lookup(ctx, idempotencyKey, merchantID); err != nil {
		return nil, internal.NewInternalError("Failed to check idempotency key", err)
	} else if hit {
		s.logger.Info("idempotent payment replayed", "merchant_id", merchantID, "idempotency_key", idempotencyKey)
		return &CreateResult{Body: cached, Replayed: true}, nil
	}

	o, err := s.orders.GetByID(ctx, dto.OrderID)
	if err != nil && !errors.Is(err, order.ErrOrderNotFound) {
		return nil, internal.NewInternalError("Failed to load order", err)
	}
	if o == nil || o.MerchantID != merchantID {
		return nil, internal.NewNotFoundError("Order not found")
	}

	details, err := dto.Validate(s.now())
	if err != nil {
		return nil, err
	}

	id, err := ids.Payment()
	if err != nil {
		return nil, internal.NewInternalError("Failed to create payment", err)
	}

	p := &Payment{
		ID:          id,
		OrderID:     o.ID,
		MerchantID:  merchantID,
		Amount:      o.Amount,
		Currency:    o.Currency,
		Method:      dto.Method,
		Status:      StatusPending,
		VPA:         details.vpa,
		CardNetwork: details.cardNetwork,
		CardLast4:   details.cardLast4,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, internal.NewInternalError("Failed to create payment", err)
	}

	if _, err := s.queue.Enqueue(ctx, queue.PaymentSettlement, SettlementJob{PaymentID: p.ID}); err != nil {
		s.logger.Error("failed to enqueue payment settlement", "payment_id", p.ID, "error", err)
		code, desc := FailureCode, "Payment could not be queued for processing"
		if _, serr := s.repo.Settle(ctx, p.ID, Settlement{Status: StatusFailed, ErrorCode: &code, ErrorDescription: &desc}); serr != nil {
			s.logger.Error("failed to mark unqueued payment failed", "payment_id", p.ID, "error", serr)
		}
		return nil, internal.NewUnavailableError("Payment processing is temporarily unavailable", err)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, internal.NewInternalError("Failed to encode payment", err)
	}

	stored, err := s.cache.Store(ctx, idempotencyKey, merchantID, body)
	if err != nil {
		// the payment exists; only replay protection is lost
		s.logger.Error("failed to store idempotency key", "payment_id", p.ID, "error", err)
		stored = body
	}

	s.logger.Info("payment created",
		"payment_id", p.ID,
		"order_id", p.OrderID,
		"merchant_id", merchantID,
		"method", p.Method,
		"amount", p.Amount)
	return &CreateResult{Body: stored}, nil
}

// List returns the merchant's payments, newest first.
func (s *Service) List(ctx context.Context, merchantID string) ([]*Payment, error) {
	payments, err := s.repo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, internal.NewInternalError("Failed to list payments", err)
	}
	if payments == nil {
		payments = []*Payment{}
	}
	return payments, nil
}

func (s *Service) Get(ctx context.Context, merchantID, id string) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, internal.NewNotFoundError("Payment not found")
		}
		return nil, internal.NewInternalError("Failed to load payment", err)
	}
	if p.MerchantID != merchantID {
		return nil, internal.NewNotFoundError("Payment not found")
	}
	return p, nil
}

// Capture marks a successful payment captured. A given amount must equal the
// payment amount.
func (s *Service) Capture(ctx context.Context, merchantID, id string, dto CaptureDTO) (*Payment, error) {
	p, err := s.Get(ctx, merchantID, id)
	if err != nil {
		return nil, err
	}
	if !p.IsCapturable() {
		return nil, internal.NewBadRequestError("Payment not in capturable state")
	}
	if dto.Amount != nil && *dto.Amount != p.Amount {
		return nil, internal.NewBadRequestError("Capture amount mismatch")
	}

	ok, err := s.repo.MarkCaptured(ctx, p.ID)
	if err != nil {
		return nil, internal.NewInternalError("Failed to capture payment", err)
	}
	if !ok {
		return nil, internal.NewBadRequestError("Payment not in capturable state")
	}

	s.logger.Info("payment captured", "payment_id", p.ID, "merchant_id", merchantID)
	return s.Get(ctx, merchantID, id)
}

func (s *Service) Stats(ctx context.Context, merchantID string) (*Stats, error) {
	stats, err := s.stats.ForMerchant(ctx, merchantID)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load stats", err)
	}
	return stats, nil
}
