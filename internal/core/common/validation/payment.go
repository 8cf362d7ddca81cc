package validation

import (
	"regexp"
	"strings"
	"time"

	errors "github.com/frahmantamala/paygate/internal"
)

const (
	NetworkVisa       = "visa"
	NetworkMastercard = "mastercard"
	NetworkAmex       = "amex"
	NetworkRupay      = "rupay"
	NetworkUnknown    = "unknown"
)

var vpaPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)

func IsValidVPA(vpa string) bool {
	return vpaPattern.MatchString(vpa)
}

// CleanCardNumber strips every non-digit character.
func CleanCardNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Luhn reports whether a digit string passes the mod-10 check.
func Luhn(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// IsValidExpiry accepts two or four digit years; a card is valid through the
// last day of its expiry month.
func IsValidExpiry(month, year int, now time.Time) bool {
	if month < 1 || month > 12 || year < 0 {
		return false
	}
	if year < 100 {
		year += 2000
	}
	now = now.UTC()
	if year != now.Year() {
		return year > now.Year()
	}
	return month >= int(now.Month())
}

func DetectCardNetwork(digits string) string {
	switch {
	case strings.HasPrefix(digits, "4"):
		return NetworkVisa
	case hasAnyPrefix(digits, "51", "52", "53", "54", "55"):
		return NetworkMastercard
	case hasAnyPrefix(digits, "34", "37"):
		return NetworkAmex
	case hasAnyPrefix(digits, "60", "65", "81", "82", "508"):
		return NetworkRupay
	default:
		return NetworkUnknown
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func ValidateVPA(vpa string) *errors.AppError {
	if !IsValidVPA(vpa) {
		return errors.NewValidationFieldError("vpa", "VPA format invalid", errors.ErrCodeInvalidVPA)
	}
	return nil
}

// ValidateCard checks the number and expiry and returns the cleaned digits.
func ValidateCard(number string, month, year int, now time.Time) (string, *errors.AppError) {
	digits := CleanCardNumber(number)
	if number == "" || month == 0 || year == 0 || !Luhn(digits) {
		return "", errors.NewValidationFieldError("card", "Card validation failed", errors.ErrCodeInvalidCard)
	}
	if !IsValidExpiry(month, year, now) {
		return "", errors.NewValidationFieldError("card", "Card expiry date invalid", errors.ErrCodeExpiredCard)
	}
	return digits, nil
}
