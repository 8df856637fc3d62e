package store

import (
	"strings"
	"unicode"
)

// fallbackName is used when a display name sanitizes to nothing.
const fallbackName = "guest"

// SanitizeName converts a display name into a filesystem-safe token.
// Whitespace runs become a single underscore; any character outside
// letters, digits, underscore and hyphen is dropped.
func SanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r):
			pendingSep = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fallbackName
	}
	return b.String()
}
