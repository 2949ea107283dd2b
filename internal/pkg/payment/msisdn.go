package payment

import (
	"fmt"
	"strings"
)

// NormalizeMSISDN turns a local or international phone number into digits-only
// international form, e.g. "024 123 4567" -> "233241234567".
func NormalizeMSISDN(phone, countryCode string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
			return -1
		default:
			return 'x'
		}
	}, strings.TrimSpace(phone))

	if strings.Contains(cleaned, "x") || cleaned == "" {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}

	cleaned = strings.TrimPrefix(cleaned, "00")
	if strings.HasPrefix(cleaned, "0") {
		cleaned = countryCode + strings.TrimPrefix(cleaned, "0")
	} else if !strings.HasPrefix(cleaned, countryCode) && len(cleaned) == 9 {
		cleaned = countryCode + cleaned
	}

	if len(cleaned) < 10 || len(cleaned) > 15 {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}
	return cleaned, nil
}
