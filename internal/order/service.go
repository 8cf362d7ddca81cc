package order

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/core/common/ids"
	"github.com/frahmantamala/paygate/internal/core/common/validation"
	orderDatamodel "github.com/frahmantamala/paygate/internal/core/datamodel/order"
)

const DefaultCurrency = "INR"

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Create(ctx context.Context, merchantID string, dto CreateOrderDTO) (*Order, error) {
	if dto.Currency == "" {
		dto.Currency = DefaultCurrency
	}
	dto.Currency = strings.ToUpper(dto.Currency)

	if err := validation.ValidateAmount(dto.Amount); err != nil {
		return nil, err
	}
	if err := validation.ValidateCurrency(dto.Currency); err != nil {
		return nil, err
	}

	id, err := ids.Order()
	if err != nil {
		return nil, internal.NewInternalError("Failed to create order", err)
	}

	o := &Order{
		ID:         id,
		MerchantID: merchantID,
		Amount:     dto.Amount,
		Currency:   dto.Currency,
		Receipt:    dto.Receipt,
		Status:     orderDatamodel.StatusCreated,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, internal.NewInternalError("Failed to create order", err)
	}

	s.logger.Info("order created", "order_id", o.ID, "merchant_id", merchantID, "amount", o.Amount)
	return o, nil
}

// Get returns the order only to the merchant that owns it.
func (s *Service) Get(ctx context.Context, merchantID, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, internal.NewNotFoundError("Order not found")
		}
		return nil, internal.NewInternalError("Failed to load order", err)
	}
	if o.MerchantID != merchantID {
		return nil, internal.NewNotFoundError("Order not found")
	}
	return o, nil
}
