package webhook

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/transport"
	"github.com/frahmantamala/paygate/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	List(ctx context.Context, merchantID string, limit, offset int) (*ListResult, error)
	Get(ctx context.Context, merchantID, id string) (*Log, error)
	Retry(ctx context.Context, merchantID, id string) (*RetryResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	merchantID := internal.MerchantIDFromContext(r.Context())
	limit := h.QueryInt(r, "limit", DefaultListLimit)
	offset := h.QueryInt(r, "offset", 0)

	result, err := h.Service.List(r.Context(), merchantID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	row, err := h.Service.Get(r.Context(), internal.MerchantIDFromContext(r.Context()), chi.URLParam(r, "webhook_id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, row)
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.Retry(r.Context(), internal.MerchantIDFromContext(r.Context()), chi.URLParam(r, "webhook_id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
