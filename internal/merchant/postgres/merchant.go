package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/paygate/internal/merchant"
	"gorm.io/gorm"
)

// MerchantRepository implements merchant.Repository using GORM
type MerchantRepository struct {
	db *gorm.DB
}

func NewMerchantRepository(db *gorm.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) Create(ctx context.Context, m *merchant.Merchant) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MerchantRepository) GetByID(ctx context.Context, id string) (*merchant.Merchant, error) {
	var m merchant.Merchant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, merchant.ErrMerchantNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MerchantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*merchant.Merchant, error) {
	var m merchant.Merchant
	err := r.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, merchant.ErrMerchantNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MerchantRepository) UpdateWebhook(ctx context.Context, id, url string, secret *string) error {
	res := r.db.WithContext(ctx).Model(&merchant.Merchant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"webhook_url":    url,
			"webhook_secret": secret,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return merchant.ErrMerchantNotFound
	}
	return nil
}
