package util

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
// Used to keep statement text prefixes readable in logs and error context.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
