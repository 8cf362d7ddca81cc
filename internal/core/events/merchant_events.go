package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentSuccess  = "payment.success"
	EventTypePaymentFailed   = "payment.failed"
	EventTypeRefundProcessed = "refund.processed"
)

// MerchantEventTypes are the events delivered to merchant webhooks.
var MerchantEventTypes = []string{
	EventTypePaymentSuccess,
	EventTypePaymentFailed,
	EventTypeRefundProcessed,
}

// MerchantEvent is an outcome a merchant is notified about.
type MerchantEvent struct {
	BaseEvent
	MerchantID string `json:"merchant_id"`
	// Key identifies the outcome being announced. Events sharing a key
	// produce a single webhook log.
	Key string `json:"key,omitempty"`
}

// WithKey sets the deduplication key.
func (e *MerchantEvent) WithKey(key string) *MerchantEvent {
	e.Key = key
	return e
}

func NewMerchantEvent(eventType, merchantID string, data map[string]interface{}) *MerchantEvent {
	return &MerchantEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		MerchantID: merchantID,
	}
}

// NewPaymentEvent carries the settled payment snapshot as {"payment": ...}.
func NewPaymentEvent(eventType, merchantID string, payment interface{}) *MerchantEvent {
	return NewMerchantEvent(eventType, merchantID, map[string]interface{}{"payment": payment})
}

// SettlementKey names the single outcome event of a payment or refund.
func SettlementKey(eventType, id string) string {
	return eventType + ":" + id
}

func NewRefundProcessedEvent(merchantID string, refund interface{}) *MerchantEvent {
	return NewMerchantEvent(EventTypeRefundProcessed, merchantID, map[string]interface{}{"refund": refund})
}
