package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Citation tokens look like "[정책문서 1]", "[웹 2]", "[정책문서 1, 3]" or the
// mixed form "[정책문서 1, 웹 2]". Indices are 1-based into the internal and
// web portions of the evidence list respectively.
var (
	citationBracketRe = regexp.MustCompile(`\[([^\[\]]+)\]`)
	citationItemRe    = regexp.MustCompile(`(정책문서|웹)?\s*(\d+)`)
)

// CitationRef points at one evidence entry referenced from answer text.
type CitationRef struct {
	Kind  EvidenceType
	Index int // 1-based within its kind
}

// ParseCitations extracts every citation reference from answer text. Bracket
// groups that do not start with a known marker are ignored; inside a group a
// bare number inherits the marker of the preceding item, which covers lists
// like "[정책문서 1, 2]".
func ParseCitations(answer string) []CitationRef {
	var refs []CitationRef
	for _, group := range citationBracketRe.FindAllStringSubmatch(answer, -1) {
		inner := strings.TrimSpace(group[1])
		if !strings.HasPrefix(inner, "정책문서") && !strings.HasPrefix(inner, "웹") {
			continue
		}
		var kind EvidenceType
		for _, item := range citationItemRe.FindAllStringSubmatch(inner, -1) {
			switch item[1] {
			case "정책문서":
				kind = EvidenceInternal
			case "웹":
				kind = EvidenceWeb
			}
			if kind == "" {
				continue
			}
			n, err := strconv.Atoi(item[2])
			if err != nil || n < 1 {
				continue
			}
			refs = append(refs, CitationRef{Kind: kind, Index: n})
		}
	}
	return refs
}

// ValidateCitations reports whether every citation token in the answer
// resolves to an existing evidence entry. The evidence list is internal
// entries first, then web entries; out-of-range tokens are left literal by
// renderers, so they count as invalid here.
func ValidateCitations(answer string, evidence []Evidence) bool {
	internal, web := 0, 0
	for _, e := range evidence {
		switch e.Type {
		case EvidenceInternal:
			internal++
		case EvidenceWeb:
			web++
		}
	}
	for _, ref := range ParseCitations(answer) {
		switch ref.Kind {
		case EvidenceInternal:
			if ref.Index > internal {
				return false
			}
		case EvidenceWeb:
			if ref.Index > web {
				return false
			}
		}
	}
	return true
}
