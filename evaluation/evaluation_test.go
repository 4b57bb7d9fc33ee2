package evaluation

import (
	"bytes"
	"testing"

	"github.com/gomlx/go-neuraltokenizer/dataset"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/features"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/segmenter"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	T = api.TokenBoundary
	S = api.SentenceBoundary
	N = api.NoBoundary
)

var testDataset = dataset.Dataset{
	{Text: "Hello world. ", Classes: []api.CharClass{N, N, N, N, T, T, N, N, N, N, T, S, T}},
	{Text: "Mr. Smith left. ", Classes: []api.CharClass{N, T, T, T, N, N, N, N, T, T, N, N, N, T, S, T}},
	{Text: "Bye!", Classes: []api.CharClass{N, N, T, S}},
}

// oracleModel predicts the gold classes of a merged dataset.
type oracleModel struct {
	classes []api.CharClass
}

func (m *oracleModel) Probabilities(_ []rune, start, end int) [][]float64 {
	var probs [][]float64
	for i := start; i < end; i++ {
		p := make([]float64, api.NumCharClasses)
		p[m.classes[i]] = 1
		probs = append(probs, p)
	}
	return probs
}

func (m *oracleModel) Language() features.Language { return features.NewLanguage("en") }
func (m *oracleModel) MaxSegmentSize() int          { return 10 }

// fixedTokenizer returns the same sentences for any text.
type fixedTokenizer []api.Sentence

func (f fixedTokenizer) Tokenize(string) []api.Sentence { return f }

func TestGoldSpans(t *testing.T) {
	merged, err := testDataset.Merge()
	require.NoError(t, err)
	tokens, sentences := GoldSpans(merged.Text, merged.Classes)
	assert.Equal(t, []Span{
		{0, 4}, {6, 10}, {11, 11}, // Hello world.
		{13, 14}, {15, 15}, {17, 21}, {23, 26}, {27, 27}, // Mr. Smith left.
		{29, 31}, {32, 32}, // Bye!
	}, tokens)
	assert.Equal(t, []Span{{0, 11}, {13, 27}, {29, 32}}, sentences)
}

func TestGoldSpansTrimsWhitespace(t *testing.T) {
	text := []rune("  a  b")
	tokens, sentences := GoldSpans(text, []api.CharClass{N, N, T, N, N, N})
	assert.Equal(t, []Span{{2, 2}, {5, 5}}, tokens)
	assert.Equal(t, []Span{{2, 5}}, sentences)

	tokens, sentences = GoldSpans(nil, nil)
	assert.Empty(t, tokens)
	assert.Empty(t, sentences)
}

func TestEvaluatePerfect(t *testing.T) {
	merged, err := testDataset.Merge()
	require.NoError(t, err)
	for _, spaceTokens := range []bool{false, true} {
		tokenizer := segmenter.New(&oracleModel{classes: merged.Classes}, segmenter.WithSpaceTokens(spaceTokens))
		result, err := Evaluate(tokenizer, testDataset)
		require.NoError(t, err)
		assert.Equal(t, Stats{Correct: 10, Predicted: 10, Gold: 10}, result.Tokens)
		assert.Equal(t, Stats{Correct: 3, Predicted: 3, Gold: 3}, result.Sentences)
		assert.Equal(t, 1.0, result.Combined())
	}
}

func TestEvaluatePartial(t *testing.T) {
	// "Hello world. Mr. Smith left. Bye!" as one sentence with "Mr." as one token.
	tok := func(start, end int) api.Token {
		return api.Token{Position: api.Position{Start: start, End: end}}
	}
	tokenizer := fixedTokenizer{{
		Tokens: []api.Token{
			tok(0, 4), tok(6, 10), tok(11, 11), tok(13, 15), tok(17, 21), tok(23, 26), tok(27, 27),
			tok(29, 31), tok(32, 32),
		},
		Position: api.Position{Start: 0, End: 32},
	}}
	result, err := Evaluate(tokenizer, testDataset)
	require.NoError(t, err)
	assert.Equal(t, Stats{Correct: 8, Predicted: 9, Gold: 10}, result.Tokens)
	assert.Equal(t, Stats{Correct: 0, Predicted: 1, Gold: 3}, result.Sentences)
	assert.InDelta(t, 8.0/9, result.Tokens.Precision(), 1e-12)
	assert.InDelta(t, 0.8, result.Tokens.Recall(), 1e-12)
	assert.InDelta(t, 16.0/19, result.Tokens.F1(), 1e-12)
	assert.Zero(t, result.Combined())

	var buf bytes.Buffer
	result.Report(&buf)
	assert.Contains(t, buf.String(), "sentences")
	assert.Contains(t, buf.String(), "0.8889")
}

func TestStatsZeroDenominators(t *testing.T) {
	var s Stats
	assert.Zero(t, s.Precision())
	assert.Zero(t, s.Recall())
	assert.Zero(t, s.F1())
}

func TestEvaluateInvalidDataset(t *testing.T) {
	_, err := Evaluate(fixedTokenizer{}, dataset.Dataset{{Text: "Hi", Classes: []api.CharClass{S}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrInvalidDataset))
}
