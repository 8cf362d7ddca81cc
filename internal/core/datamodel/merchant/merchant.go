package merchant

import "time"

type Merchant struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name          string    `gorm:"column:name;not null" json:"name"`
	Email         string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	APIKey        string    `gorm:"column:api_key;type:varchar(64);not null;uniqueIndex" json:"api_key"`
	APISecretHash string    `gorm:"column:api_secret_hash;not null" json:"-"`
	WebhookURL    *string   `gorm:"column:webhook_url" json:"webhook_url"`
	WebhookSecret *string   `gorm:"column:webhook_secret" json:"-"`
	IsActive      bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Merchant) TableName() string {
	return "merchants"
}

// WebhookConfigured reports whether deliveries can be signed and sent.
func (m *Merchant) WebhookConfigured() bool {
	return m.WebhookURL != nil && *m.WebhookURL != "" &&
		m.WebhookSecret != nil && *m.WebhookSecret != ""
}
