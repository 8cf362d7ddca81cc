package refund

import "time"

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
)

type Refund struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	PaymentID   string     `gorm:"column:payment_id;type:varchar(64);not null;index" json:"payment_id"`
	MerchantID  string     `gorm:"column:merchant_id;type:varchar(64);not null;index" json:"merchant_id"`
	Amount      int64      `gorm:"column:amount;not null" json:"amount"`
	Reason      *string    `gorm:"column:reason" json:"reason,omitempty"`
	Status      string     `gorm:"column:status;type:varchar(20);not null" json:"status"`
	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
}

func (Refund) TableName() string {
	return "refunds"
}
