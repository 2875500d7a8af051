// Package errfmt caps and sanitizes text taken from executor output before it
// reaches events, index records, or terminal output.
package errfmt

import (
	"unicode"
	"unicode/utf8"
)

// MaxLen caps error content to prevent unbounded propagation.
const MaxLen = 4096

// MaxCodeLen caps error codes (short identifiers).
const MaxCodeLen = 128

// truncateUTF8 caps s at max bytes, backtracking to a valid UTF-8 boundary.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

// Truncate caps a string at MaxLen bytes with UTF-8-safe truncation.
func Truncate(s string) string {
	return truncateUTF8(s, MaxLen)
}

// TruncateTo caps s at limit bytes with UTF-8-safe truncation.
// Non-positive limits return s unchanged.
func TruncateTo(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	return truncateUTF8(s, limit)
}

// Format joins an error code and message as "code: message" and caps the
// result at MaxLen bytes. An empty code yields the message alone.
func Format(code, message string) string {
	if code != "" {
		message = code + ": " + message
	}
	return Truncate(message)
}

// SanitizeCode validates and truncates a raw error code string.
// Returns "" for strings containing control characters.
// Validate-then-truncate: control chars are rejected first, then
// rune-safe truncation ensures valid UTF-8 output.
func SanitizeCode(raw string) string {
	for _, r := range raw {
		if unicode.IsControl(r) {
			return ""
		}
	}
	return truncateUTF8(raw, MaxCodeLen)
}
