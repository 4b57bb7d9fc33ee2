package training

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/gomlx/go-neuraltokenizer/dataset"
	"github.com/gomlx/go-neuraltokenizer/models/boundary"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
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

// annotate labels the last letter of each word, and the punctuation, as token boundaries, and
// the final period as a sentence boundary.
func annotate(text string) dataset.AnnotatedSentence {
	runes := []rune(text)
	classes := make([]api.CharClass, len(runes))
	for i, r := range runes {
		switch {
		case r == '.' && i >= len(runes)-2:
			classes[i] = S
		case r == ' ' || r == ',' || r == '.':
			classes[i] = T
		case i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == ',' || runes[i+1] == '.'):
			classes[i] = T
		default:
			classes[i] = N
		}
	}
	return dataset.AnnotatedSentence{Text: text, Classes: classes}
}

func testData() dataset.Dataset {
	return dataset.Dataset{
		annotate("The cat sat. "),
		annotate("A dog ran, then sat. "),
		annotate("We go home now. "),
		annotate("Cats nap. "),
	}
}

func newModel(t *testing.T) *boundary.Model {
	m, err := boundary.New(boundary.Config{Language: "en", MaxSegmentSize: 16, CharEmbeddingsSize: 4, HiddenSize: 8, Seed: 1})
	require.NoError(t, err)
	return m
}

func TestNextWindowStart(t *testing.T) {
	classes := []api.CharClass{
		N, N, T, N, N, S, N, N, T, N, // 0-9
		N, N, N, N, T, N, N, N, N, N, // 10-19
		N, N, N, N, N, N, N, N, N, N, // 20-29
	}
	for _, tc := range []struct {
		name   string
		window segmenter.Window
		want   int
	}{
		{"last sentence boundary", segmenter.Window{Start: 0, End: 10}, 6},
		{"boundary nearest to the middle", segmenter.Window{Start: 8, End: 18}, 15},
		{"ties go to the earlier boundary", segmenter.Window{Start: 6, End: 16}, 9},
		{"middle without boundaries", segmenter.Window{Start: 15, End: 25}, 20},
		{"end of text", segmenter.Window{Start: 22, End: 30}, 30},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextWindowStart(classes, tc.window))
		})
	}
}

func TestNewValidatesOptions(t *testing.T) {
	m := newModel(t)
	for _, mutate := range []func(*Options){
		func(o *Options) { o.BatchSize = 0 },
		func(o *Options) { o.Epochs = 0 },
		func(o *Options) { o.LearningRate = 0 },
		func(o *Options) { o.Validation = dataset.Dataset{{Text: "ab", Classes: []api.CharClass{N}}} },
	} {
		options := DefaultOptions()
		mutate(&options)
		_, err := New(m, options)
		assert.Error(t, err)
	}
}

func TestTrain(t *testing.T) {
	m := newModel(t)
	options := DefaultOptions()
	options.BatchSize = 2
	options.Epochs = 15
	options.LearningRate = 0.02
	options.Shuffler = rand.New(rand.NewPCG(3, 4))
	options.ModelPath = filepath.Join(t.TempDir(), "en.safetensors")
	h, err := New(m, options)
	require.NoError(t, err)

	history, err := h.Train(context.Background(), testData())
	require.NoError(t, err)
	require.Len(t, history, 15)
	for _, stats := range history {
		assert.Positive(t, stats.Windows)
		assert.True(t, stats.Saved, "without validation the model is saved every epoch")
		assert.Nil(t, stats.Validation)
	}
	assert.Less(t, history[len(history)-1].Loss, history[0].Loss)

	loaded, err := boundary.Load(options.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, h.RunID, loaded.RunID)
	assert.ElementsMatch(t, m.Embeddings().Alphabet(), loaded.Embeddings().Alphabet())
}

func TestTrainWithValidation(t *testing.T) {
	m := newModel(t)
	options := DefaultOptions()
	options.Epochs = 3
	options.Validation = dataset.Dataset{annotate("The dog sat. ")}
	options.ModelPath = filepath.Join(t.TempDir(), "en.safetensors")
	h, err := New(m, options)
	require.NoError(t, err)

	history, err := h.Train(context.Background(), testData())
	require.NoError(t, err)
	best := -1.0
	for _, stats := range history {
		require.NotNil(t, stats.Validation)
		combined := stats.Validation.Combined()
		assert.Equal(t, combined > best, stats.Saved)
		best = max(best, combined)
	}
	assert.True(t, history[0].Saved)
}

func TestTrainErrors(t *testing.T) {
	h, err := New(newModel(t), DefaultOptions())
	require.NoError(t, err)

	_, err = h.Train(context.Background(), dataset.Dataset{{Text: "abc", Classes: []api.CharClass{N, S}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrInvalidDataset))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Train(ctx, testData())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
