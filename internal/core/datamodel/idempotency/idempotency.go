package idempotency

import (
	"time"

	"gorm.io/datatypes"
)

// Key caches the first response produced for (key, merchant).
type Key struct {
	Key        string         `gorm:"primaryKey;column:key;type:varchar(255)"`
	MerchantID string         `gorm:"primaryKey;column:merchant_id;type:varchar(64)"`
	Response   datatypes.JSON `gorm:"column:response;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
	ExpiresAt  time.Time      `gorm:"column:expires_at;not null;index"`
}

func (Key) TableName() string {
	return "idempotency_keys"
}
