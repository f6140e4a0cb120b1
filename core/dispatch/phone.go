package dispatch

import (
	"fmt"
	"strings"
)

// Phone length bounds after normalization.
const (
	MinPhoneDigits = 10
	MaxPhoneDigits = 15
)

// NormalizePhone strips everything but digits and rewrites a leading 0 to the
// country code. The result must hold 10 to 15 digits.
func NormalizePhone(raw, countryCode string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	p := b.String()
	if strings.HasPrefix(p, "0") {
		p = countryCode + p[1:]
	}
	if len(p) < MinPhoneDigits || len(p) > MaxPhoneDigits {
		return "", fmt.Errorf("%w: phone %q must have %d-%d digits", ErrValidation, raw, MinPhoneDigits, MaxPhoneDigits)
	}
	return p, nil
}
