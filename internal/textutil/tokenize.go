// Package textutil holds the single shared tokenizer helper spec.md §4.E
// and §4.D's quality features both rely on: split on non-alphanumeric
// runs, lowercase, discard empty tokens.
package textutil

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase alphanumeric-run tokens, the shared
// primitive used by every dedup engine and by quality.score's
// unique-token-ratio feature.
func Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
