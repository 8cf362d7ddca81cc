package order

import (
	"context"
	"errors"

	orderDatamodel "github.com/frahmantamala/paygate/internal/core/datamodel/order"
)

type Order = orderDatamodel.Order

var ErrOrderNotFound = errors.New("order not found")

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
}

// Directory resolves orders when a payment is created.
type Directory interface {
	GetByID(ctx context.Context, id string) (*Order, error)
}

type CreateOrderDTO struct {
	Amount   int64   `json:"amount"`
	Currency string  `json:"currency"`
	Receipt  *string `json:"receipt,omitempty"`
}
