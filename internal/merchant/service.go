package merchant

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/core/common/ids"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	repo       Repository
	tokens     *JWTTokenGenerator
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo Repository, tokens *JWTTokenGenerator, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, tokens: tokens, bcryptCost: bcryptCost, logger: logger}
}

func (s *Service) GetByID(ctx context.Context, id string) (*Merchant, error) {
	return s.repo.GetByID(ctx, id)
}

// Authenticate verifies an API key and secret pair.
func (s *Service) Authenticate(ctx context.Context, apiKey, apiSecret string) (*Merchant, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, internal.ErrInvalidCredentials
	}

	m, err := s.repo.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, ErrMerchantNotFound) {
			return nil, internal.ErrInvalidCredentials
		}
		return nil, internal.NewInternalError("Failed to authenticate", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.APISecretHash), []byte(apiSecret)); err != nil {
		s.logger.Warn("api secret mismatch", "merchant_id", m.ID)
		return nil, internal.ErrInvalidCredentials
	}
	if !m.IsActive {
		return nil, internal.NewUnauthorizedError("Merchant account is inactive")
	}
	return m, nil
}

func (s *Service) IssueToken(ctx context.Context, dto TokenDTO) (*TokenResponse, error) {
	m, err := s.Authenticate(ctx, dto.APIKey, dto.APISecret)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateAccessToken(m.ID)
	if err != nil {
		return nil, internal.NewInternalError("Failed to issue token", err)
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.TTL.Seconds()),
	}, nil
}

// ValidateToken returns the merchant the bearer token was issued to.
func (s *Service) ValidateToken(ctx context.Context, token string) (*Merchant, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	m, err := s.repo.GetByID(ctx, claims.MerchantID)
	if err != nil {
		if errors.Is(err, ErrMerchantNotFound) {
			return nil, internal.ErrInvalidToken
		}
		return nil, internal.NewInternalError("Failed to authenticate", err)
	}
	if !m.IsActive {
		return nil, internal.NewUnauthorizedError("Merchant account is inactive")
	}
	return m, nil
}

// UpdateWebhook sets the delivery URL and creates a signing secret on first use.
func (s *Service) UpdateWebhook(ctx context.Context, merchantID string, dto UpdateWebhookDTO) (*Merchant, error) {
	u, err := url.Parse(dto.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, internal.NewBadRequestError("webhook_url must be an absolute http(s) URL")
	}

	m, err := s.repo.GetByID(ctx, merchantID)
	if err != nil {
		if errors.Is(err, ErrMerchantNotFound) {
			return nil, internal.NewNotFoundError("Merchant not found")
		}
		return nil, internal.NewInternalError("Failed to load merchant", err)
	}

	secret := m.WebhookSecret
	if secret == nil || *secret == "" {
		generated, err := GenerateSecret("whsec_")
		if err != nil {
			return nil, internal.NewInternalError("Failed to generate webhook secret", err)
		}
		secret = &generated
	}

	if err := s.repo.UpdateWebhook(ctx, merchantID, dto.WebhookURL, secret); err != nil {
		return nil, internal.NewInternalError("Failed to update webhook", err)
	}

	s.logger.Info("merchant webhook updated", "merchant_id", merchantID, "webhook_url", dto.WebhookURL)
	m.WebhookURL = &dto.WebhookURL
	m.WebhookSecret = secret
	return m, nil
}

// HashSecret hashes an API secret for storage.
func (s *Service) HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateSecret returns prefix followed by 32 random hex characters.
func GenerateSecret(prefix string) (string, error) {
	return ids.Hex(prefix, 32)
}
