package merchant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/transport"
	"github.com/frahmantamala/paygate/pkg/logger"
)

const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderAPISecret = "X-Api-Secret"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, id string) (*Merchant, error)
	Authenticate(ctx context.Context, apiKey, apiSecret string) (*Merchant, error)
	IssueToken(ctx context.Context, dto TokenDTO) (*TokenResponse, error)
	ValidateToken(ctx context.Context, token string) (*Merchant, error)
	UpdateWebhook(ctx context.Context, merchantID string, dto UpdateWebhookDTO) (*Merchant, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// AuthMiddleware accepts a bearer token or the X-Api-Key / X-Api-Secret pair.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			m   *Merchant
			err error
		)

		if token := h.ExtractTokenFromHeader(r); token != "" {
			m, err = h.Service.ValidateToken(r.Context(), token)
		} else {
			m, err = h.Service.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey), r.Header.Get(HeaderAPISecret))
		}
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}

		ctx := internal.ContextWithMerchantID(r.Context(), m.ID)
		ctx = logger.With(ctx, "merchant_id", m.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var dto TokenDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.Service.IssueToken(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	m, err := h.Service.GetByID(r.Context(), internal.MerchantIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, ErrMerchantNotFound) {
			err = internal.NewNotFoundError("Merchant not found")
		}
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ToView(m))
}

func (h *Handler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var dto UpdateWebhookDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.Service.UpdateWebhook(r.Context(), internal.MerchantIDFromContext(r.Context()), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ToView(m))
}
