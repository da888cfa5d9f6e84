// Package tokenizer provides text tokenisation for the search engine. It
// lower-cases input and splits on non-alphanumeric boundaries. The same
// function is applied to documents at index time and to queries at search
// time, so a term that matches at one always matches at the other.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenize breaks text into a slice of lowercased terms. Punctuation and
// whitespace are treated as boundaries; empty tokens are discarded.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
