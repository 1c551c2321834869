package identity

import (
	"strings"
	"unicode"
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps digits and a leading '+'.
// "+250 788-123 456" becomes "+250788123456".
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeNationalID strips whitespace and upper-cases.
func NormalizeNationalID(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
