// Package text provides rune-aware helpers for sizing outgoing messages.
package text

// Ellipsis is appended by Truncate.
const Ellipsis = "…"

// CountRunes counts the Unicode characters (runes) in text rather than bytes,
// which is how SMS budgets are measured.
//
// Examples:
//
//	CountRunes("hello")     // 5
//	CountRunes("こんにちは") // 5
//	CountRunes("")          // 0
func CountRunes(text string) int {
	return len([]rune(text))
}

// Truncate shortens text to at most limit runes. When text has to be cut,
// the result ends with Ellipsis and the Ellipsis counts towards the limit.
// A limit below 1 returns "".
//
// Examples:
//
//	Truncate("clean water act", 8) // "clean w…"
//	Truncate("short", 10)          // "short"
func Truncate(text string, limit int) string {
	if limit < 1 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + Ellipsis
}
