package provider

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidEmail reports whether s looks like a deliverable address shape.
func ValidEmail(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}

// NormalizePhone strips formatting from a phone number, keeping digits and a
// leading plus sign.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPhone reports whether s contains at least ten digits after
// normalization. Shorter strings are extensions or junk.
func ValidPhone(s string) bool {
	digits := strings.TrimPrefix(NormalizePhone(s), "+")
	return len(digits) >= 10
}
