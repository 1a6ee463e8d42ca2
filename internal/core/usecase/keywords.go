package usecase

import "strings"

// Query-level keyword extraction is intentionally cruder than the sparse
// tokenizer: split on whitespace, drop particles and single-rune tokens.
// The survivors feed the dynamic-threshold adjustments and the web query.
var keywordStopwords = map[string]struct{}{
	"을": {}, "를": {}, "이": {}, "가": {}, "은": {}, "는": {},
	"에": {}, "의": {}, "로": {}, "와": {}, "과": {}, "도": {}, "만": {}, "뿐": {},
}

func extractKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	keywords := make([]string, 0, len(words))
	for _, word := range words {
		if _, drop := keywordStopwords[word]; drop {
			continue
		}
		if len([]rune(word)) < 2 {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}
