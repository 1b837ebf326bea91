//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package bm25

import (
	"strings"
	"unicode"
)

// stopWords are common English words ignored when indexing and querying.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "he": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true, "this": true, "but": true, "they": true, "have": true,
	"had": true, "what": true, "when": true, "where": true, "who": true,
	"which": true, "why": true, "how": true, "all": true, "each": true,
	"some": true, "such": true, "no": true, "not": true, "so": true,
	"than": true, "too": true, "very": true, "can": true, "just": true,
	"i": true, "you": true, "we": true, "me": true, "my": true,
	"your": true, "our": true, "their": true, "him": true, "her": true,
	"want": true, "like": true, "book": true, "books": true, "about": true,
	"something": true, "recommend": true, "please": true,
}

// Tokenize lower-cases text and splits it on anything that is not a letter
// or digit. Single-character tokens and stop words are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// frequencies counts each token of text.
func frequencies(text string) (map[string]int, int) {
	tokens := Tokenize(text)
	freqs := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freqs[tok]++
	}
	return freqs, len(tokens)
}
