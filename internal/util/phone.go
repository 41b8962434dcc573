package util

import (
	"regexp"
	"strings"
)

var (
	nonDigits = regexp.MustCompile(`\D+`)
	tenDigits = regexp.MustCompile(`^\d{10}$`)
	emailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// NormalizePhone strips separators and a leading Mexican country code (52 / +52),
// leaving the 10-digit national number when the input had one.
func NormalizePhone(raw string) string {
	s := nonDigits.ReplaceAllString(strings.TrimSpace(raw), "")

	if strings.HasPrefix(s, "0052") && len(s) == 14 {
		s = s[4:]
	} else if strings.HasPrefix(s, "52") && len(s) == 12 {
		s = s[2:]
	}

	return s
}

// ValidPhone reports whether a normalized phone has exactly 10 digits.
func ValidPhone(phone string) bool {
	return tenDigits.MatchString(phone)
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func ValidEmail(email string) bool {
	return emailRe.MatchString(email)
}
