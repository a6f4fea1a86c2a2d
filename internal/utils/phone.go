package utils

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizeWhatsAppTarget validates a phone target and returns it in E.164
// digits (no leading +), the format the WhatsApp transport expects.
// countryCode is the dial code supplied by the caller (e.g. "55"); it is
// required when the target is not already in international form.
func NormalizeWhatsAppTarget(target, countryCode string) (string, error) {
	cleaned := strings.TrimSpace(target)
	if cleaned == "" {
		return "", fmt.Errorf("empty phone number")
	}

	if !strings.HasPrefix(cleaned, "+") {
		dial := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
		if dial == "" {
			return "", fmt.Errorf("country code is required for phone number %q", target)
		}
		cleaned = "+" + dial + cleaned
	}

	num, err := phonenumbers.Parse(cleaned, "")
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number: %s", target)
	}

	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}
