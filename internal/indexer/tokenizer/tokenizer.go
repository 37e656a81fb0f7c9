// Package tokenizer normalises raw text into terms. It lower-cases input,
// deletes every rune that is neither a word character (letter, number,
// underscore) nor whitespace, and splits on whitespace runs.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenize returns the terms of text in order. Empty or punctuation-only
// input yields an empty, non-nil slice.
func Tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if isWord(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	terms := strings.Fields(b.String())
	if terms == nil {
		return []string{}
	}
	return terms
}

// TokenizeAll tokenizes every document, preserving corpus order.
func TokenizeAll(docs []string) [][]string {
	out := make([][]string, len(docs))
	for i, doc := range docs {
		out[i] = Tokenize(doc)
	}
	return out
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
