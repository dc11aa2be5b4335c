// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "BR"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// WhatsAppDigits returns the E.164 number without the leading plus, the form
// expected by wa.me links. Returns an empty string when the number is invalid.
func WhatsAppDigits(input string) string {
	normalized := NormalizeE164(input)
	if !strings.HasPrefix(normalized, "+") {
		return ""
	}
	return strings.TrimPrefix(normalized, "+")
}
