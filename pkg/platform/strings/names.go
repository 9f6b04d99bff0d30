package strings

import (
	"strings"
	"unicode"
)

// NameFromEmail derives a display name from the local part of an email
// address, splitting on '.', '_', '-' and '+'.
//
// Example:
//
//	NameFromEmail("ada.king-lovelace@example.com")
//	// Returns: "Ada Lovelace"
func NameFromEmail(email string) string {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return capitalize(parts[0])
	default:
		return capitalize(parts[0]) + " " + capitalize(parts[len(parts)-1])
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
