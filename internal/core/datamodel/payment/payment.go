package payment

import "time"

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"

	MethodUPI  = "upi"
	MethodCard = "card"
)

type Payment struct {
	ID               string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OrderID          string    `gorm:"column:order_id;type:varchar(64);not null;index" json:"order_id"`
	MerchantID       string    `gorm:"column:merchant_id;type:varchar(64);not null;index" json:"merchant_id"`
	Amount           int64     `gorm:"column:amount;not null" json:"amount"`
	Currency         string    `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Method           string    `gorm:"column:method;type:varchar(20);not null" json:"method"`
	Status           string    `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	VPA              *string   `gorm:"column:vpa" json:"vpa,omitempty"`
	CardNetwork      *string   `gorm:"column:card_network" json:"card_network,omitempty"`
	CardLast4        *string   `gorm:"column:card_last4;type:varchar(4)" json:"card_last4,omitempty"`
	Captured         bool      `gorm:"column:captured;not null" json:"captured"`
	ErrorCode        *string   `gorm:"column:error_code" json:"error_code,omitempty"`
	ErrorDescription *string   `gorm:"column:error_description" json:"error_description,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsCapturable() bool {
	return p.Status == StatusSuccess && !p.Captured
}
