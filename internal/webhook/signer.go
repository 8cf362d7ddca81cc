package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	ContentType     = "application/json"
)

// Envelope is the body POSTed to merchants.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// BuildBody serializes the envelope once; the same bytes are signed and sent.
func BuildBody(event string, at time.Time, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return json.Marshal(Envelope{
		Event:     event,
		Timestamp: at.Unix(),
		Data:      json.RawMessage(payload),
	})
}

// Sign returns the lowercase hex HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time.
func Verify(body []byte, secret, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
