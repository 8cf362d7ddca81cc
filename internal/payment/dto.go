package payment

import (
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/core/common/validation"
)

type CreatePaymentDTO struct {
	OrderID string   `json:"order_id"`
	Method  string   `json:"method"`
	VPA     string   `json:"vpa,omitempty"`
	Card    *CardDTO `json:"card,omitempty"`
}

type CardDTO struct {
	Number      string      `json:"number"`
	ExpiryMonth FlexibleInt `json:"expiry_month"`
	ExpiryYear  FlexibleInt `json:"expiry_year"`
	CVV         string      `json:"cvv"`
	HolderName  string      `json:"holder_name"`
}

// FlexibleInt accepts both 12 and "12".
type FlexibleInt int

func (f *FlexibleInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = FlexibleInt(v)
	return nil
}

type CaptureDTO struct {
	Amount *int64 `json:"amount,omitempty"`
}

// methodDetails are the validated, storable method fields.
type methodDetails struct {
	vpa         *string
	cardNetwork *string
	cardLast4   *string
}

func (d *CreatePaymentDTO) Validate(now time.Time) (*methodDetails, error) {
	v := validation.NewValidator()
	v.Field("order_id", d.OrderID).Required()
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	switch d.Method {
	case MethodUPI:
		if appErr := validation.ValidateVPA(d.VPA); appErr != nil {
			return nil, appErr
		}
		vpa := d.VPA
		return &methodDetails{vpa: &vpa}, nil

	case MethodCard:
		if d.Card == nil {
			return nil, internal.NewValidationFieldError("card", "Card validation failed", internal.ErrCodeInvalidCard)
		}
		digits, appErr := validation.ValidateCard(d.Card.Number, int(d.Card.ExpiryMonth), int(d.Card.ExpiryYear), now)
		if appErr != nil {
			return nil, appErr
		}
		network := validation.DetectCardNetwork(digits)
		last4 := digits[len(digits)-4:]
		return &methodDetails{cardNetwork: &network, cardLast4: &last4}, nil

	default:
		return nil, internal.NewBadRequestError("Invalid payment method")
	}
}
