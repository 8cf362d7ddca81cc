package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/paygate/internal/idempotency"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdempotencyRepository struct {
	db *gorm.DB
}

var _ idempotency.Repository = (*IdempotencyRepository)(nil)

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) GetLive(ctx context.Context, key, merchantID string, now time.Time) (*idempotency.Key, error) {
	var entry idempotency.Key
	err := r.db.WithContext(ctx).
		Where("key = ? AND merchant_id = ? AND expires_at > ?", key, merchantID, now).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, idempotency.ErrKeyNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// Put upserts on (key, merchant_id); the update only applies to expired rows.
func (r *IdempotencyRepository) Put(ctx context.Context, entry *idempotency.Key, now time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}, {Name: "merchant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"response", "created_at", "expires_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "idempotency_keys.expires_at <= ?", Vars: []interface{}{now}},
			}},
		}).
		Create(entry).Error
}
