package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/paygate/internal/payment"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

var _ payment.Repository = (*PaymentRepository)(nil)

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByMerchant(ctx context.Context, merchantID string) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) Settle(ctx context.Context, id string, s payment.Settlement) (bool, error) {
	res := r.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("id = ? AND status = ?", id, payment.StatusPending).
		Updates(map[string]interface{}{
			"status":            s.Status,
			"error_code":        s.ErrorCode,
			"error_description": s.ErrorDescription,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *PaymentRepository) MarkCaptured(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("id = ? AND status = ? AND captured = ?", id, payment.StatusSuccess, false).
		Update("captured", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
