package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/idempotency"
	"github.com/frahmantamala/paygate/internal/transport"
	"github.com/frahmantamala/paygate/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Create(ctx context.Context, merchantID, idempotencyKey string, dto CreatePaymentDTO) (*CreateResult, error)
	List(ctx context.Context, merchantID string) ([]*Payment, error)
	Get(ctx context.Context, merchantID, id string) (*Payment, error)
	Capture(ctx context.Context, merchantID, id string, dto CaptureDTO) (*Payment, error)
	Stats(ctx context.Context, merchantID string) (*Stats, error)
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

// Create handles POST /api/v1/payments
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var dto CreatePaymentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	merchantID := internal.MerchantIDFromContext(r.Context())
	result, err := h.Service.Create(r.Context(), merchantID, r.Header.Get(idempotency.Header), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteRawJSON(w, http.StatusCreated, result.Body)
}

// List handles GET /api/v1/payments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Service.List(r.Context(), internal.MerchantIDFromContext(r.Context()))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, payments)
}

// Get handles GET /api/v1/payments/{payment_id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Get(r.Context(), internal.MerchantIDFromContext(r.Context()), chi.URLParam(r, "payment_id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// Capture handles POST /api/v1/payments/{payment_id}/capture
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	var dto CaptureDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil && !errors.Is(err, io.EOF) {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.Capture(r.Context(), internal.MerchantIDFromContext(r.Context()), chi.URLParam(r, "payment_id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// Stats handles GET /api/v1/dashboard/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context(), internal.MerchantIDFromContext(r.Context()))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}
