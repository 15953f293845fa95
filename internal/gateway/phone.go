package gateway

import (
	"regexp"
	"strings"

	"momopay/internal/errors"
)

var phoneDigits = regexp.MustCompile(`^\d+$`)

// NormalizePhone converts a customer phone number into the 2507XXXXXXXX format
// the gateway requires. Accepts local (07XXXXXXXX), bare (7XXXXXXXX) and
// international (+2507XXXXXXXX / 2507XXXXXXXX) forms.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "+")
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")

	if !phoneDigits.MatchString(p) {
		return "", errors.ErrInvalidPhone
	}

	switch {
	case len(p) == 12 && strings.HasPrefix(p, "2507"):
		return p, nil
	case len(p) == 10 && strings.HasPrefix(p, "07"):
		return "250" + p[1:], nil
	case len(p) == 9 && strings.HasPrefix(p, "7"):
		return "250" + p, nil
	default:
		return "", errors.ErrInvalidPhone
	}
}
