package features

import (
	"testing"

	"github.com/gomlx/go-neuraltokenizer/tokenizers/abbreviations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constEmbedder returns the code point as a one-dimensional embedding.
type constEmbedder struct{}

func (constEmbedder) Embedding(r rune) []float64 { return []float64{float64(r)} }
func (constEmbedder) EmbeddingSize() int          { return 1 }

func TestExtract(t *testing.T) {
	extractor := NewExtractor(constEmbedder{}, abbreviations.New("mr."))
	require.Equal(t, 5, extractor.Size())
	text := []rune("Mr. Smith went home 2.")

	// 'r' is followed by the abbreviation's period.
	assert.Equal(t, []float64{'r', 1, 0, 0, 1}, extractor.Extract(text, 1))
	// The period after "Mr" ends an abbreviation.
	assert.Equal(t, []float64{'.', 0, 0, 1, 0}, extractor.Extract(text, 2))
	// Digit.
	assert.Equal(t, []float64{'2', 0, 1, 0, 0}, extractor.Extract(text, len(text)-2))
	// Last character has no lookahead.
	assert.Equal(t, []float64{'.', 0, 0, 0, 0}, extractor.Extract(text, len(text)-1))
}

func TestExtractWithoutAbbreviations(t *testing.T) {
	extractor := NewExtractor(constEmbedder{}, nil)
	text := []rune("Mr. Smith")
	vectors := extractor.ExtractWindow(text, 0, 4)
	require.Len(t, vectors, 4)
	for _, v := range vectors {
		assert.Zero(t, v[3])
		assert.Zero(t, v[4])
	}
}

func TestNewLanguage(t *testing.T) {
	assert.False(t, NewLanguage("en").NoWhitespaceSegmentation)
	zh := NewLanguage(" ZH ")
	assert.Equal(t, "zh", zh.Code)
	assert.True(t, zh.NoWhitespaceSegmentation)
	assert.True(t, NewLanguage("th").NoWhitespaceSegmentation)
}
