// Package explorer drives the recursive upstream exploration: it runs one
// requirement through the staged workflow graph, decides whether to stop or
// recurse, and bounds the recursion by depth or iteration count while
// suppressing duplicate requirements.
package explorer

import "strings"

// Canonicalize reduces a requirement text to its duplicate-detection key:
// lower-cased, whitespace-trimmed, truncated to prefixLen runes. Distinct
// long texts sharing a prefix collide and are treated as duplicates; that
// is an intentional precision/recall trade-off, and prefixLen is
// configurable because no particular value is load-bearing.
//
// Canonicalize is idempotent.
func Canonicalize(text string, prefixLen int) string {
	key := strings.ToLower(strings.TrimSpace(text))
	if prefixLen <= 0 {
		return key
	}

	runes := []rune(key)
	if len(runes) <= prefixLen {
		return key
	}
	// Truncation can expose trailing whitespace that was interior before.
	return strings.TrimSpace(string(runes[:prefixLen]))
}
