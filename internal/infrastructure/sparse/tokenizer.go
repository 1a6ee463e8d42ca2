package sparse

import (
	"strings"
	"unicode"
)

// stopwords covers Korean particles, connectives and verb stems that carry no
// retrieval signal, mirroring what the corpus actually contains.
var stopwords = map[string]struct{}{
	"은": {}, "는": {}, "이": {}, "가": {}, "을": {}, "를": {}, "의": {},
	"에": {}, "에서": {}, "로": {}, "으로": {}, "와": {}, "과": {}, "도": {},
	"만": {}, "뿐": {}, "부터": {}, "까지": {}, "에게": {}, "한테": {}, "께": {},
	"그리고": {}, "그러나": {}, "하지만": {}, "또한": {}, "또": {}, "및": {}, "등": {},
	"하다": {}, "되다": {}, "있다": {}, "없다": {}, "같다": {}, "위한": {}, "통한": {}, "대한": {},
	"것": {}, "수": {}, "중": {}, "내": {}, "외": {},
}

// Tokenize splits text into lowercase tokens: letters, digits and underscores
// form tokens, everything else is a separator. Tokens shorter than two runes
// and stopwords are dropped.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	lowered := strings.ToLower(text)
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := make([]string, 0, len(fields))
	for _, token := range fields {
		if len([]rune(token)) < 2 {
			continue
		}
		if _, drop := stopwords[token]; drop {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}
