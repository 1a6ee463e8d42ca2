package usecase

// truncateRunes cuts s to at most limit runes, appending an ellipsis when it
// actually cut something.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
