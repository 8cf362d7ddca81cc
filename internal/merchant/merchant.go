package merchant

import (
	"context"
	"errors"

	merchantDatamodel "github.com/frahmantamala/paygate/internal/core/datamodel/merchant"
)

type Merchant = merchantDatamodel.Merchant

var ErrMerchantNotFound = errors.New("merchant not found")

type Repository interface {
	Create(ctx context.Context, m *Merchant) error
	GetByID(ctx context.Context, id string) (*Merchant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Merchant, error)
	UpdateWebhook(ctx context.Context, id, url string, secret *string) error
}

// Directory resolves merchants for the delivery worker and the API.
type Directory interface {
	GetByID(ctx context.Context, id string) (*Merchant, error)
}

// View is the merchant as returned to itself. The webhook secret is shown so
// the merchant can verify signatures.
type View struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	APIKey        string  `json:"api_key"`
	WebhookURL    *string `json:"webhook_url"`
	WebhookSecret *string `json:"webhook_secret"`
	IsActive      bool    `json:"is_active"`
}

func ToView(m *Merchant) View {
	return View{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		APIKey:        m.APIKey,
		WebhookURL:    m.WebhookURL,
		WebhookSecret: m.WebhookSecret,
		IsActive:      m.IsActive,
	}
}

type TokenDTO struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type UpdateWebhookDTO struct {
	WebhookURL string `json:"webhook_url"`
}
