package webhook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/queue"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 50
)

type ListResult struct {
	Data   []*Log `json:"data"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type RetryResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Service struct {
	repo   Repository
	queue  queue.Queue
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo Repository, q queue.Queue, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		queue:  q,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func (s *Service) List(ctx context.Context, merchantID string, limit, offset int) (*ListResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	logs, total, err := s.repo.ListByMerchant(ctx, merchantID, limit, offset)
	if err != nil {
		return nil, internal.NewInternalError("Failed to list webhooks", err)
	}
	if logs == nil {
		logs = []*Log{}
	}
	return &ListResult{Data: logs, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *Service) Get(ctx context.Context, merchantID, id string) (*Log, error) {
	row, err := s.repo.GetForMerchant(ctx, id, merchantID)
	if err != nil {
		if errors.Is(err, ErrLogNotFound) {
			return nil, internal.NewNotFoundError("Webhook log not found")
		}
		return nil, internal.NewInternalError("Failed to load webhook", err)
	}
	return row, nil
}

// Retry resets a log to a fresh pending state and enqueues it immediately.
func (s *Service) Retry(ctx context.Context, merchantID, id string) (*RetryResponse, error) {
	row, err := s.repo.GetForMerchant(ctx, id, merchantID)
	if err != nil {
		if errors.Is(err, ErrLogNotFound) {
			return nil, internal.NewNotFoundError("Webhook log not found")
		}
		return nil, internal.NewInternalError("Failed to load webhook", err)
	}

	ok, err := s.repo.ResetForRetry(ctx, id, merchantID, s.now())
	if err != nil {
		return nil, internal.NewInternalError("Failed to schedule retry", err)
	}
	if !ok {
		return nil, internal.NewNotFoundError("Webhook log not found")
	}

	_, err = s.queue.Enqueue(ctx, queue.WebhookDelivery, DeliveryJob{
		WebhookLogID: row.ID,
		MerchantID:   row.MerchantID,
		Event:        row.Event,
		Payload:      []byte(row.Payload),
	})
	if err != nil {
		// next_retry_at is already due, the poller will enqueue it.
		s.logger.Warn("manual retry enqueue failed", "webhook_log_id", id, "error", err)
	}

	s.logger.Info("webhook retry scheduled", "webhook_log_id", id, "merchant_id", merchantID)
	return &RetryResponse{ID: id, Status: StatusPending, Message: "Webhook retry scheduled"}, nil
}
