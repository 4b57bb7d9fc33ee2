// Package dataset holds annotated sentences used to train and evaluate boundary models.
//
// An annotated sentence is a text plus one api.CharClass per character (rune) of the text.
// Datasets are stored either as JSON, an array of [text, [classes...]] pairs, or as Parquet
// files with a "text" and a "classes" column.
package dataset

import (
	"encoding/json"
	"math/rand/v2"
	"slices"

	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/pkg/errors"
)

// ErrInvalidDataset is returned (wrapped) when a sentence's classification doesn't match its text.
var ErrInvalidDataset = errors.New("invalid dataset")

// AnnotatedSentence is a text with the gold class of each of its characters.
type AnnotatedSentence struct {
	Text    string
	Classes []api.CharClass
}

// MarshalJSON encodes the sentence as a [text, classes] pair.
func (s AnnotatedSentence) MarshalJSON() ([]byte, error) {
	classes := s.Classes
	if classes == nil {
		classes = []api.CharClass{}
	}
	return json.Marshal([]any{s.Text, classes})
}

// UnmarshalJSON decodes a [text, classes] pair.
func (s *AnnotatedSentence) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.Wrap(err, "annotated sentence must be a [text, classes] array")
	}
	if len(pair) != 2 {
		return errors.Errorf("annotated sentence must be a [text, classes] array, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &s.Text); err != nil {
		return errors.Wrap(err, "annotated sentence text")
	}
	if err := json.Unmarshal(pair[1], &s.Classes); err != nil {
		return errors.Wrap(err, "annotated sentence classes")
	}
	return nil
}

// Validate checks that there is exactly one valid class per character.
func (s AnnotatedSentence) Validate() error {
	if n := len([]rune(s.Text)); n != len(s.Classes) {
		return errors.Wrapf(ErrInvalidDataset, "text has %d characters but %d classes: %q", n, len(s.Classes), s.Text)
	}
	for i, c := range s.Classes {
		if !c.IsValid() {
			return errors.Wrapf(ErrInvalidDataset, "invalid class %d at position %d: %q", c, i, s.Text)
		}
	}
	return nil
}

// Dataset is an ordered list of annotated sentences.
type Dataset []AnnotatedSentence

// Validate checks every sentence, and reports the first invalid one.
func (d Dataset) Validate() error {
	for i, s := range d {
		if err := s.Validate(); err != nil {
			return errors.WithMessagef(err, "sentence #%d", i)
		}
	}
	return nil
}

// Shuffled returns a copy of the dataset with the sentences in random order.
func (d Dataset) Shuffled(rng *rand.Rand) Dataset {
	shuffled := slices.Clone(d)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// NumChars returns the total number of characters of the dataset.
func (d Dataset) NumChars() int {
	var n int
	for _, s := range d {
		n += len(s.Classes)
	}
	return n
}

// MergedDataset is a dataset concatenated into one text.
type MergedDataset struct {
	Text    []rune
	Classes []api.CharClass

	// Offsets[i] is the position in Text of the first character of sentence i.
	Offsets []int
}

// Merge concatenates the sentences, in order, into one text and one classification.
// It fails with ErrInvalidDataset if any sentence is invalid.
func (d Dataset) Merge() (*MergedDataset, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	numChars := d.NumChars()
	merged := &MergedDataset{
		Text:    make([]rune, 0, numChars),
		Classes: make([]api.CharClass, 0, numChars),
		Offsets: make([]int, 0, len(d)),
	}
	for _, s := range d {
		merged.Offsets = append(merged.Offsets, len(merged.Text))
		merged.Text = append(merged.Text, []rune(s.Text)...)
		merged.Classes = append(merged.Classes, s.Classes...)
	}
	return merged, nil
}

// String returns the merged text.
func (m *MergedDataset) String() string {
	return string(m.Text)
}

// Annotate builds the annotated sentence for the given segmentation of text: it is the inverse
// of reading sentences and tokens out of a classification, and it's used to bootstrap
// datasets from existing tokenizations. Characters not covered by any token are classified
// as TokenBoundary if they are whitespace, and NoBoundary otherwise.
func Annotate(text string, sentences []api.Sentence) AnnotatedSentence {
	runes := []rune(text)
	classes := make([]api.CharClass, len(runes))
	for i, r := range runes {
		if api.IsSpacing(r) {
			classes[i] = api.TokenBoundary
		} else {
			classes[i] = api.NoBoundary
		}
	}
	for _, sentence := range sentences {
		for _, token := range sentence.Tokens {
			if token.IsSpace || token.Position.End >= len(classes) {
				continue
			}
			classes[token.Position.End] = api.TokenBoundary
		}
		if sentence.Position.End < len(classes) {
			classes[sentence.Position.End] = api.SentenceBoundary
		}
	}
	return AnnotatedSentence{Text: text, Classes: classes}
}
