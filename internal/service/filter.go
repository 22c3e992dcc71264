package service

import (
	"strings"

	"cryptoverse/internal/domain"
)

// FilterQuotes returns the quotes whose name or symbol contains text,
// case-insensitively, in their original order. Empty text returns quotes as-is.
// The input slice is never modified.
func FilterQuotes(quotes []domain.AssetQuote, text string) []domain.AssetQuote {
	if text == "" {
		return quotes
	}

	needle := strings.ToLower(text)
	result := make([]domain.AssetQuote, 0, len(quotes))
	for _, q := range quotes {
		if matches(q, needle) {
			result = append(result, q)
		}
	}
	return result
}

func matches(q domain.AssetQuote, needle string) bool {
	return strings.Contains(strings.ToLower(q.Name), needle) ||
		strings.Contains(strings.ToLower(q.Symbol), needle)
}
