package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/frahmantamala/paygate/internal/refund"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RefundRepository struct {
	db *gorm.DB
}

var _ refund.Repository = (*RefundRepository)(nil)

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// CreateWithinLimit checks the refundable balance and inserts in one
// transaction. On PostgreSQL the payment row is locked first so concurrent
// refunds of one payment are serialized.
func (r *RefundRepository) CreateWithinLimit(ctx context.Context, ref *refund.Refund) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("id = ?", ref.PaymentID)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var p payment.Payment
		if err := q.First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return payment.ErrPaymentNotFound
			}
			return err
		}
		if p.MerchantID != ref.MerchantID {
			return payment.ErrPaymentNotFound
		}
		if p.Status != payment.StatusSuccess {
			return refund.ErrNotRefundable
		}

		var refunded int64
		if err := tx.Model(&refund.Refund{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("payment_id = ?", ref.PaymentID).
			Scan(&refunded).Error; err != nil {
			return err
		}

		remaining := p.Amount - refunded
		if ref.Amount > remaining {
			return &refund.ExceedsRemainingError{Requested: ref.Amount, Remaining: remaining}
		}

		return tx.Create(ref).Error
	})
}

func (r *RefundRepository) GetByID(ctx context.Context, id string) (*refund.Refund, error) {
	var ref refund.Refund
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, refund.ErrRefundNotFound
		}
		return nil, err
	}
	return &ref, nil
}

func (r *RefundRepository) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&refund.Refund{}).
		Where("id = ? AND status = ?", id, refund.StatusPending).
		Updates(map[string]interface{}{
			"status":       refund.StatusProcessed,
			"processed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *RefundRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&refund.Refund{}).Error
}
