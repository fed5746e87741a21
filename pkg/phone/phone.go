// Package phone normalizes phone numbers to the digits-only E.164 form the
// BSP expects.
package phone

import (
	"errors"
	"strings"
)

var ErrInvalid = errors.New("invalid phone number")

const (
	minDigits = 8
	maxDigits = 15
)

// Normalize converts raw input to provider format: international digits with
// no plus sign. Recognized local formats (leading 0, 00-prefix) get the
// default country code prefixed. Returns ErrInvalid for anything that does
// not reduce to a plausible number.
func Normalize(raw string, defaultCountryCode string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalid
	}

	international := strings.HasPrefix(s, "+")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' || r == '+':
			// separators are ignored
		default:
			return "", ErrInvalid
		}
	}
	digits := b.String()

	switch {
	case international:
		// already has a country code
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		digits = defaultCountryCode + digits[1:]
	case strings.HasPrefix(digits, defaultCountryCode):
		// already prefixed, national numbers shorter than a country code
		// cannot reach this branch
	default:
		digits = defaultCountryCode + digits
	}

	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", ErrInvalid
	}
	return digits, nil
}
