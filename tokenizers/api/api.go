// Package api defines the types shared by the boundary tagger packages: the per-character
// boundary classes and the tokens and sentences assembled from them.
//
// It has no dependencies on the model or the segmenter, so that datasets, evaluators and
// servers can exchange tokenization results without importing the neural machinery.
package api

import (
	"fmt"
	"unicode"
)

// CharClass is the boundary class predicted (or annotated) for one character.
type CharClass int

const (
	// TokenBoundary marks the last character of a token.
	TokenBoundary CharClass = iota
	// SentenceBoundary marks the last character of a token that also ends a sentence.
	SentenceBoundary
	// NoBoundary marks a character that continues the current token.
	NoBoundary
	// NumCharClasses is the size of the class distribution.
	NumCharClasses
)

// String implements fmt.Stringer.
func (c CharClass) String() string {
	switch c {
	case TokenBoundary:
		return "TokenBoundary"
	case SentenceBoundary:
		return "SentenceBoundary"
	case NoBoundary:
		return "NoBoundary"
	default:
		return fmt.Sprintf("CharClass(%d)", int(c))
	}
}

// IsValid returns whether c is one of the three boundary classes.
func (c CharClass) IsValid() bool {
	return c >= TokenBoundary && c < NumCharClasses
}

// Position locates a span in the original text.
// Start and End are inclusive rune (code point) offsets, so the covered text is
// []rune(text)[Start : End+1].
// Index is the sequential number of the span among its siblings: tokens and sentences
// are each numbered from 0 across the whole document.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Index int `json:"index"`
}

// Len returns the number of characters covered by the position.
func (p Position) Len() int {
	return p.End - p.Start + 1
}

// Token is a word, number or punctuation mark found in the text.
type Token struct {
	Form     string   `json:"form"`
	Position Position `json:"position"`

	// IsSpace is true if the token is exactly one whitespace character. Such tokens are
	// only emitted when the segmenter is configured to keep them.
	IsSpace bool `json:"isSpace,omitempty"`
}

// Sentence is an ordered sequence of tokens.
type Sentence struct {
	Tokens   []Token  `json:"tokens"`
	Position Position `json:"position"`
	Text     string   `json:"text"`
}

// Tokenizer splits text into sentences of tokens.
type Tokenizer interface {
	Tokenize(text string) []Sentence
}

// IsSpacing reports whether r separates tokens without belonging to any of them.
func IsSpacing(r rune) bool {
	return unicode.IsSpace(r)
}
