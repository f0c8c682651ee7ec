// Package utils provides shared utilities for text and logging.
package utils

// Truncate shortens s to at most maxLen runes, appending "..." when text was
// cut. maxLen <= 0 disables truncation.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
