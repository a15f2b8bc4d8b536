package logger

import "strings"

// RedactSecret masks a credential value for safe logging, keeping only the
// last 4 characters: "1//0abcdef1234" → "**********1234".
// Values of 4 characters or fewer are fully masked; empty stays empty.
func RedactSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
