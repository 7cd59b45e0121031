package order

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("phone must be an Argentine number with area code")

// NormalizePhone turns a customer phone into +54 followed by the national
// number, the form WhatsApp links take. Anything that is not a digit is
// dropped, as is a leading trunk 0. Numbers without the 54 country code get
// it. The national part must have 10 or 11 digits.
func NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	digits = strings.TrimPrefix(digits, "0")
	if !strings.HasPrefix(digits, "54") {
		digits = "54" + digits
	}
	if n := len(digits) - 2; n < 10 || n > 11 {
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}
