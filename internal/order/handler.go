package order

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
	Create(ctx context.Context, merchantID string, dto CreateOrderDTO) (*Order, error)
	Get(ctx context.Context, merchantID, id string) (*Order, error)
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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var dto CreateOrderDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.Service.Create(r.Context(), internal.MerchantIDFromContext(r.Context()), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.Get(r.Context(), internal.MerchantIDFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, o)
}
