package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/paygate/internal/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookRepository implements webhook.Repository using GORM
type WebhookRepository struct {
	db *gorm.DB
}

var _ webhook.Repository = (*WebhookRepository)(nil)

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, log *webhook.Log) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *WebhookRepository) CreateIfAbsent(ctx context.Context, log *webhook.Log) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(log)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*webhook.Log, error) {
	var log webhook.Log
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webhook.ErrLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

func (r *WebhookRepository) GetForMerchant(ctx context.Context, id, merchantID string) (*webhook.Log, error) {
	var log webhook.Log
	err := r.db.WithContext(ctx).Where("id = ? AND merchant_id = ?", id, merchantID).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webhook.ErrLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

func (r *WebhookRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*webhook.Log, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&webhook.Log{}).
		Where("merchant_id = ?", merchantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []*webhook.Log
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	return logs, total, err
}

func (r *WebhookRepository) Claim(ctx context.Context, id string, now, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&webhook.Log{}).
		Where("id = ? AND status = ?", id, webhook.StatusPending).
		Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Updates(map[string]interface{}{
			"claimed_until": until,
			// a claimed row stays visible to the poller once the claim lapses
			"next_retry_at": gorm.Expr("COALESCE(next_retry_at, ?)", now),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *WebhookRepository) Release(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&webhook.Log{}).
		Where("id = ?", id).
		Update("claimed_until", nil).Error
}

func (r *WebhookRepository) RecordAttempt(ctx context.Context, id string, expectedAttempts int, result webhook.AttemptResult) error {
	res := r.db.WithContext(ctx).Model(&webhook.Log{}).
		Where("id = ? AND attempts = ?", id, expectedAttempts).
		Updates(map[string]interface{}{
			"status":          result.Status,
			"attempts":        result.Attempts,
			"response_code":   nullable(result.ResponseCode),
			"response_body":   nullable(result.ResponseBody),
			"last_attempt_at": result.AttemptedAt,
			"next_retry_at":   nullable(result.NextRetryAt),
			"claimed_until":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return webhook.ErrConcurrentUpdate
	}
	return nil
}

// ListDue returns pending, unclaimed logs whose retry time has passed, oldest first.
func (r *WebhookRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*webhook.Log, error) {
	var logs []*webhook.Log
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", webhook.StatusPending, now).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func (r *WebhookRepository) MarkDue(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&webhook.Log{}).
		Where("id = ? AND status = ?", id, webhook.StatusPending).
		Update("next_retry_at", gorm.Expr("COALESCE(next_retry_at, ?)", at)).Error
}

func (r *WebhookRepository) ResetForRetry(ctx context.Context, id, merchantID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&webhook.Log{}).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		Updates(map[string]interface{}{
			"status":        webhook.StatusPending,
			"attempts":      0,
			"next_retry_at": now,
			"claimed_until": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// nullable turns a typed nil pointer into an untyped nil so every driver
// writes NULL.
func nullable[T any](v *T) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
