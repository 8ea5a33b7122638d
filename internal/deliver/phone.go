package deliver

import (
	"fmt"
	"strings"
)

// Normalizer turns a user-entered phone number into the wire format the
// gateway expects. It is a swappable strategy: the default rule assumes one
// clinic locale and is wrong everywhere else.
type Normalizer interface {
	Normalize(raw string) (string, error)
}

// CountryCodeNormalizer strips separators and prefixes a default country
// code when the number carries none.
type CountryCodeNormalizer struct {
	DefaultCountryCode string
}

func (n CountryCodeNormalizer) Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separator, dropped
		default:
			return "", fmt.Errorf("phone number contains invalid character %q", r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	hasPlus := strings.HasPrefix(strings.TrimSpace(raw), "+")
	switch {
	case hasPlus:
		return digits, nil
	case strings.HasPrefix(digits, n.DefaultCountryCode) && len(digits) > 10:
		return digits, nil
	case strings.HasPrefix(digits, "0"):
		return n.DefaultCountryCode + digits[1:], nil
	default:
		return n.DefaultCountryCode + digits, nil
	}
}
