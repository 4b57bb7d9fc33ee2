// Package features turns the characters of a text into the fixed-size numeric vectors fed to
// the boundary model's encoder.
//
// Each vector is the character embedding followed by four orthographic flags:
//
//	[embedding (D values)] ++ [isLetter, isDigit, isEndOfAbbreviation(i), isEndOfAbbreviation(i+1)]
//
// The abbreviation flags use the language's abbreviations.Table, and are always 0 if the
// language has none.
package features

import (
	"unicode"

	"github.com/gomlx/go-neuraltokenizer/tokenizers/abbreviations"
)

// NumExtraFeatures is the number of flags appended to the character embedding.
const NumExtraFeatures = 4

// Embedder maps a character to its embedding vector.
//
// Inference embedders must not mutate shared state: unseen characters map to a fixed
// "unknown" vector. Training embedders may allocate a new vector instead.
type Embedder interface {
	Embedding(r rune) []float64
	EmbeddingSize() int
}

// Extractor builds feature vectors. It is safe for concurrent use if its Embedder is.
type Extractor struct {
	embedder      Embedder
	abbreviations *abbreviations.Table
}

// NewExtractor creates an Extractor. abbrevs may be nil.
func NewExtractor(embedder Embedder, abbrevs *abbreviations.Table) *Extractor {
	return &Extractor{embedder: embedder, abbreviations: abbrevs}
}

// Size of the feature vectors returned by Extract.
func (e *Extractor) Size() int {
	return e.embedder.EmbeddingSize() + NumExtraFeatures
}

// Extract returns the feature vector of text[focus]. It requires 0 <= focus < len(text).
func (e *Extractor) Extract(text []rune, focus int) []float64 {
	d := e.embedder.EmbeddingSize()
	vec := make([]float64, d+NumExtraFeatures)
	copy(vec, e.embedder.Embedding(text[focus]))
	r := text[focus]
	vec[d] = boolToFloat(unicode.IsLetter(r))
	vec[d+1] = boolToFloat(unicode.IsDigit(r))
	vec[d+2] = boolToFloat(e.abbreviations.IsEndOfAbbreviation(text, focus))
	if focus+1 < len(text) {
		vec[d+3] = boolToFloat(e.abbreviations.IsEndOfAbbreviation(text, focus+1))
	}
	return vec
}

// ExtractWindow returns the feature vectors of text[start:end].
func (e *Extractor) ExtractWindow(text []rune, start, end int) [][]float64 {
	vectors := make([][]float64, 0, end-start)
	for i := start; i < end; i++ {
		vectors = append(vectors, e.Extract(text, i))
	}
	return vectors
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
