package knowledge

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Normalize is the comparison key for a knowledge item: case-folded with
// runs of whitespace collapsed.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// CountChars counts runes, not bytes.
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// EstimateTokens approximates tokens as 1.3 per whitespace-separated word.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(strings.Fields(text))) * 1.3))
}

// Dedup drops items that repeat an earlier one after normalization, and
// blank items. Order of first occurrence is kept.
func Dedup(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := Normalize(item)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(item))
	}
	return out
}
