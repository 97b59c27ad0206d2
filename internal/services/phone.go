package services

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`[^\d]`)

// NormalizePhone normalizes a contact identifier to E.164 (+1XXXXXXXXXX).
// Handles 4075551234, 407-555-1234, (407) 555-1234, 1-407-555-1234 and
// already-normalized inputs. Unrecognizable values pass through unchanged.
func NormalizePhone(phone string) string {
	if phone == "" {
		return phone
	}
	digits := nonDigits.ReplaceAllString(phone, "")
	if len(digits) == 10 {
		digits = "1" + digits
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		return "+" + digits
	}
	return phone
}
