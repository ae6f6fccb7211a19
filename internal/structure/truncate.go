package structure

// TruncateResult reports what Truncate did. Lengths are in runes, matching
// the budget unit.
type TruncateResult struct {
	Content         string
	Truncated       bool
	OriginalLength  int
	TruncatedLength int
}

// Truncate enforces a character budget with sentence-boundary awareness.
// When the text exceeds maxChars, the cut is moved back to the nearest
// sentence-ending punctuation at or beyond 70% of the budget; when no such
// boundary exists, the hard cut at maxChars stands. Rune-safe.
func Truncate(text string, maxChars int) TruncateResult {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return TruncateResult{
			Content:         text,
			Truncated:       false,
			OriginalLength:  len(runes),
			TruncatedLength: len(runes),
		}
	}

	cut := runes[:maxChars]
	minIdx := maxChars * 7 / 10

	end := maxChars
	for i := maxChars - 2; i >= minIdx; i-- {
		if isSentenceEnd(cut[i]) && cut[i+1] == ' ' {
			end = i + 2 // keep the punctuation and its trailing space
			break
		}
	}

	content := string(cut[:end])
	return TruncateResult{
		Content:         content,
		Truncated:       true,
		OriginalLength:  len(runes),
		TruncatedLength: end,
	}
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}
