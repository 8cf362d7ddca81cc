package webhook

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Log is the durable delivery record of one event for one merchant.
type Log struct {
	ID            string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	MerchantID    string         `gorm:"column:merchant_id;type:varchar(64);not null;index" json:"merchant_id"`
	Event         string         `gorm:"column:event;type:varchar(64);not null" json:"event"`
	Payload       datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	Status        string         `gorm:"column:status;type:varchar(20);not null;index:idx_webhook_logs_due,priority:1" json:"status"`
	Attempts      int            `gorm:"column:attempts;not null" json:"attempts"`
	ResponseCode  *int           `gorm:"column:response_code" json:"response_code"`
	ResponseBody  *string        `gorm:"column:response_body" json:"response_body"`
	LastAttemptAt *time.Time     `gorm:"column:last_attempt_at" json:"last_attempt_at"`
	NextRetryAt   *time.Time     `gorm:"column:next_retry_at;index:idx_webhook_logs_due,priority:2" json:"next_retry_at"`
	ClaimedUntil  *time.Time     `gorm:"column:claimed_until" json:"-"`
	CreatedAt     time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Log) TableName() string {
	return "webhook_logs"
}
