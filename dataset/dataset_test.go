package dataset

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	T = api.TokenBoundary
	S = api.SentenceBoundary
	N = api.NoBoundary
)

var testDataset = Dataset{
	{Text: "Hello world. ", Classes: []api.CharClass{N, N, N, N, T, T, N, N, N, N, T, S, T}},
	{Text: "Bye!", Classes: []api.CharClass{N, N, T, S}},
	{Text: "Città è bella. ", Classes: []api.CharClass{N, N, N, N, T, T, T, T, N, N, N, N, T, S, T}},
}

func TestUnmarshalJSON(t *testing.T) {
	d, err := ReadJSON(strings.NewReader(`[["Hi!", [2, 0, 1]], ["Ok", [2, 1]]]`))
	require.NoError(t, err)
	require.Len(t, d, 2)
	assert.Equal(t, "Hi!", d[0].Text)
	assert.Equal(t, []api.CharClass{N, T, S}, d[0].Classes)
	require.NoError(t, d.Validate())

	for _, bad := range []string{`[["Hi!"]]`, `[["Hi!", [0], 3]]`, `[[1, [0]]]`, `[["Hi", "00"]]`, `{}`} {
		_, err := ReadJSON(strings.NewReader(bad))
		assert.Errorf(t, err, "input %s", bad)
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, testDataset.Validate())

	for _, bad := range []Dataset{
		{{Text: "Hi!", Classes: []api.CharClass{N, S}}},
		{{Text: "Hi", Classes: []api.CharClass{N, 3}}},
		{{Text: "è", Classes: []api.CharClass{N, S}}}, // one character, two bytes
	} {
		err := bad.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidDataset))
		_, err = bad.Merge()
		assert.True(t, errors.Is(err, ErrInvalidDataset))
	}
}

func TestMerge(t *testing.T) {
	merged, err := testDataset.Merge()
	require.NoError(t, err)
	assert.Equal(t, "Hello world. Bye!Città è bella. ", merged.String())
	assert.Equal(t, testDataset.NumChars(), len(merged.Text))
	assert.Equal(t, len(merged.Text), len(merged.Classes))
	assert.Equal(t, []int{0, 13, 17}, merged.Offsets)
	assert.Equal(t, testDataset, splitMerged(merged))
}

// splitMerged cuts the merged dataset back into its sentences, at the offsets.
func splitMerged(m *MergedDataset) Dataset {
	var d Dataset
	for i, start := range m.Offsets {
		end := len(m.Text)
		if i+1 < len(m.Offsets) {
			end = m.Offsets[i+1]
		}
		d = append(d, AnnotatedSentence{Text: string(m.Text[start:end]), Classes: m.Classes[start:end]})
	}
	return d
}

func TestMergeShuffledPreservesSentences(t *testing.T) {
	var d Dataset
	for i := range 50 {
		text := fmt.Sprintf("Sentence %d.", i)
		classes := slices.Repeat([]api.CharClass{N}, len(text))
		classes[len(classes)-1] = S
		d = append(d, AnnotatedSentence{Text: text, Classes: classes})
	}
	original, err := d.Merge()
	require.NoError(t, err)

	shuffled := d.Shuffled(rand.New(rand.NewPCG(1, 2)))
	assert.NotEqual(t, d, shuffled)
	assert.ElementsMatch(t, d, shuffled)
	merged, err := shuffled.Merge()
	require.NoError(t, err)
	assert.Equal(t, len(original.Text), len(merged.Text))
	assert.Equal(t, len(original.Classes), len(merged.Classes))

	assert.ElementsMatch(t, d, splitMerged(merged))
	assert.Equal(t, "Sentence 0.", d[0].Text, "Shuffled must not modify the original")
}

func TestAnnotate(t *testing.T) {
	text := "Hello world. Bye!"
	sentences := []api.Sentence{
		{
			Tokens: []api.Token{
				{Form: "Hello", Position: api.Position{Start: 0, End: 4}},
				{Form: "world", Position: api.Position{Start: 6, End: 10}},
				{Form: ".", Position: api.Position{Start: 11, End: 11}},
			},
			Position: api.Position{Start: 0, End: 11},
		},
		{
			Tokens: []api.Token{
				{Form: "Bye", Position: api.Position{Start: 13, End: 15}},
				{Form: "!", Position: api.Position{Start: 16, End: 16}},
			},
			Position: api.Position{Start: 13, End: 16},
		},
	}
	got := Annotate(text, sentences)
	assert.Equal(t, []api.CharClass{N, N, N, N, T, T, N, N, N, N, T, S, T, N, N, T, S}, got.Classes)
	require.NoError(t, got.Validate())
}

func TestJSONFiles(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "train.json")
	require.NoError(t, testDataset.Save(filePath))
	loaded, err := Load(filePath)
	require.NoError(t, err)
	assert.Equal(t, testDataset, loaded)

	var buf bytes.Buffer
	require.NoError(t, Dataset{}.WriteJSON(&buf))
	empty, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParquetFiles(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "train.parquet")
	require.NoError(t, testDataset.Save(filePath))
	loaded, err := Load(filePath)
	require.NoError(t, err)
	assert.Equal(t, testDataset, loaded)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "train.csv"))
	require.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`[["Hi!", [2, 1]]]`), 0o644))
	_, err = Load(invalid)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDataset))
}
