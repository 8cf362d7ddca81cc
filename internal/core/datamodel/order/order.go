package order

import "time"

const StatusCreated = "created"

type Order struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	MerchantID string    `gorm:"column:merchant_id;type:varchar(64);not null;index" json:"merchant_id"`
	Amount     int64     `gorm:"column:amount;not null" json:"amount"`
	Currency   string    `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Receipt    *string   `gorm:"column:receipt" json:"receipt,omitempty"`
	Status     string    `gorm:"column:status;type:varchar(20);not null" json:"status"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
