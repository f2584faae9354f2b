package booking

import (
	"fmt"
	"strings"
)

const phoneDigits = 10

// NormalizePhone strips every non-digit rune and requires exactly ten digits.
// "555-123-4567", "(555) 123-4567" and "5551234567" all normalize to the same
// canonical form.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) != phoneDigits {
		return "", fmt.Errorf("phone number must have %d digits, got %d", phoneDigits, len(digits))
	}
	return digits, nil
}
