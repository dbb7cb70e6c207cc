package engine

import "unicode"

// EstimateTokens approximates the token count of text for logging: about
// four characters per token plus one per six whitespace runs. Non-empty text
// is at least one token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	chars, spaces := 0, 0
	for _, r := range text {
		chars++
		if unicode.IsSpace(r) {
			spaces++
		}
	}
	if n := chars/4 + spaces/6; n > 0 {
		return n
	}
	return 1
}
