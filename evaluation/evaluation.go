// Package evaluation measures how well a tokenizer reproduces the gold segmentation of a dataset.
//
// Tokens and sentences are compared as (start, end) character spans: a predicted span is correct
// if the gold segmentation has exactly the same span.
package evaluation

import (
	"fmt"
	"io"
	"math"

	"github.com/gomlx/go-neuraltokenizer/dataset"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/olekukonko/tablewriter"
	"k8s.io/klog/v2"
)

// Span of characters, both ends inclusive.
type Span struct {
	Start, End int
}

// Stats counts the correct, predicted and gold spans of one kind.
type Stats struct {
	Correct, Predicted, Gold int
}

// Precision is the fraction of predicted spans that are correct, or 0 if nothing was predicted.
func (s Stats) Precision() float64 {
	return ratio(s.Correct, s.Predicted)
}

// Recall is the fraction of gold spans that were predicted, or 0 if there are no gold spans.
func (s Stats) Recall() float64 {
	return ratio(s.Correct, s.Gold)
}

// F1 is the harmonic mean of precision and recall.
func (s Stats) F1() float64 {
	return ratio(2*s.Correct, s.Predicted+s.Gold)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Result of an evaluation.
type Result struct {
	Tokens, Sentences Stats
}

// Combined metric used to select the best model during training: token F1 times the square
// root of sentence F1.
func (r Result) Combined() float64 {
	return r.Tokens.F1() * math.Sqrt(r.Sentences.F1())
}

// String implements fmt.Stringer.
func (r Result) String() string {
	return fmt.Sprintf("tokens F1=%.4f, sentences F1=%.4f, combined=%.4f", r.Tokens.F1(), r.Sentences.F1(), r.Combined())
}

// Report writes the result as a table.
func (r Result) Report(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"SPANS", "PRECISION", "RECALL", "F1", "CORRECT", "PREDICTED", "GOLD"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, row := range []struct {
		name  string
		stats Stats
	}{{"tokens", r.Tokens}, {"sentences", r.Sentences}} {
		table.Append([]string{
			row.name,
			fmt.Sprintf("%.4f", row.stats.Precision()),
			fmt.Sprintf("%.4f", row.stats.Recall()),
			fmt.Sprintf("%.4f", row.stats.F1()),
			fmt.Sprint(row.stats.Correct),
			fmt.Sprint(row.stats.Predicted),
			fmt.Sprint(row.stats.Gold),
		})
	}
	table.Render()
	_, _ = fmt.Fprintf(w, "\ncombined (tokens F1 x sqrt(sentences F1)): %.4f\n", r.Combined())
}

// Evaluate runs tokenizer over the concatenation of the dataset sentences and compares its
// output with the gold classification.
//
// It fails with dataset.ErrInvalidDataset if the dataset is invalid.
func Evaluate(tokenizer api.Tokenizer, d dataset.Dataset) (Result, error) {
	merged, err := d.Merge()
	if err != nil {
		return Result{}, err
	}
	goldTokens, goldSentences := GoldSpans(merged.Text, merged.Classes)
	predTokens, predSentences := PredictedSpans(tokenizer.Tokenize(merged.String()))

	// Gold spans are read from the merged classification, so both segmentations share the
	// merged text offsets.
	result := Result{
		Tokens:    compare(predTokens, goldTokens),
		Sentences: compare(predSentences, goldSentences),
	}
	klog.V(1).Infof("Evaluated %d sentences: %s", len(d), result)
	return result, nil
}

// GoldSpans reads the token and sentence spans out of a per-character classification.
//
// NoBoundary continues a token, any other class closes it at that character, and a
// SentenceBoundary also closes the sentence. The last character closes the last token and
// sentence. Leading and trailing whitespace is trimmed from tokens, and tokens made only of
// whitespace are dropped, since tokenizers don't emit them.
func GoldSpans(text []rune, classes []api.CharClass) (tokens, sentences []Span) {
	tokenStart, sentenceStart, sentenceEnd := 0, -1, -1
	closeToken := func(end int) {
		start := tokenStart
		tokenStart = end + 1
		for start <= end && api.IsSpacing(text[start]) {
			start++
		}
		for end >= start && api.IsSpacing(text[end]) {
			end--
		}
		if start > end {
			return
		}
		tokens = append(tokens, Span{start, end})
		if sentenceStart < 0 {
			sentenceStart = start
		}
		sentenceEnd = end
	}
	closeSentence := func() {
		if sentenceStart >= 0 {
			sentences = append(sentences, Span{sentenceStart, sentenceEnd})
		}
		sentenceStart, sentenceEnd = -1, -1
	}

	for i, class := range classes {
		last := i == len(classes)-1
		if class != api.NoBoundary || last {
			closeToken(i)
		}
		if class == api.SentenceBoundary || last {
			closeSentence()
		}
	}
	return tokens, sentences
}

// PredictedSpans returns the spans of the tokens, excluding whitespace tokens, and of the
// sentences.
func PredictedSpans(predicted []api.Sentence) (tokens, sentences []Span) {
	for _, sentence := range predicted {
		sentences = append(sentences, Span{sentence.Position.Start, sentence.Position.End})
		for _, token := range sentence.Tokens {
			if token.IsSpace {
				continue
			}
			tokens = append(tokens, Span{token.Position.Start, token.Position.End})
		}
	}
	return tokens, sentences
}

func compare(predicted, gold []Span) Stats {
	goldSet := make(map[Span]struct{}, len(gold))
	for _, s := range gold {
		goldSet[s] = struct{}{}
	}
	stats := Stats{Predicted: len(predicted), Gold: len(gold)}
	for _, s := range predicted {
		if _, found := goldSet[s]; found {
			stats.Correct++
		}
	}
	return stats
}
