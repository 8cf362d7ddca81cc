package refund

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/transport"
	"github.com/frahmantamala/paygate/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Create(ctx context.Context, merchantID, paymentID string, dto CreateRefundDTO) (*Refund, error)
	Get(ctx context.Context, merchantID, id string) (*Refund, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.LoggerWrapper()),
		Service:     svc,
	}
}

// Create handles POST /api/v1/payments/{payment_id}/refunds
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var dto CreateRefundDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ref, err := h.Service.Create(r.Context(), internal.MerchantIDFromContext(r.Context()), chi.URLParam(r, "payment_id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, ref)
}

// Get handles GET /api/v1/refunds/{refund_id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ref, err := h.Service.Get(r.Context(), internal.MerchantIDFromContext(r.Context()), chi.URLParam(r, "refund_id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ref)
}
