// Package segmenter implements the streaming decoder of the boundary tagger: it slides a
// bounded window over the text, asks the boundary model for the class of every character in
// the window, and assembles the predictions into tokens and sentences.
//
// After each window the decoder decides where the next one starts:
//
//   - If sentences were completed, everything after the last one is discarded and the next
//     window starts right after it.
//   - Else, if tokens were completed, it keeps the ones covering at least half a window and
//     classifies the rest again, with more right context, in the next window.
//   - Else, if the window only had leading spaces before an unfinished token, the spaces are
//     dropped.
//   - Else (no boundary at all), the unfinished token keeps the first half of the window and
//     the next window starts in its middle.
//
// Working memory is bounded by the window size, independently of the length of the text.
package segmenter

import (
	"fmt"
	"unicode"

	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/features"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"
)

// BoundaryModel predicts, for each character of text[start:end], a distribution over the
// api.NumCharClasses boundary classes.
//
// Implementations must be safe to call concurrently if the Segmenter is used concurrently.
type BoundaryModel interface {
	Probabilities(text []rune, start, end int) [][]float64
	Language() features.Language
	MaxSegmentSize() int
}

// Segmenter implements api.Tokenizer with a BoundaryModel.
//
// Decoding state is allocated per call, so a Segmenter can be used concurrently as long as
// its model can.
type Segmenter struct {
	model          BoundaryModel
	maxSegmentSize int
	spaceTokens    bool
	noWhitespace   bool
}

// Compile time assert that Segmenter implements api.Tokenizer.
var _ api.Tokenizer = &Segmenter{}

// Option configures a Segmenter.
type Option func(s *Segmenter)

// WithMaxSegmentSize overrides the window size of the model.
func WithMaxSegmentSize(size int) Option {
	return func(s *Segmenter) {
		s.maxSegmentSize = size
	}
}

// WithSpaceTokens makes the segmenter emit every whitespace character inside a sentence as a
// token with IsSpace set.
func WithSpaceTokens(keep bool) Option {
	return func(s *Segmenter) {
		s.spaceTokens = keep
	}
}

// New creates a Segmenter. The model is not owned: it can be shared.
func New(model BoundaryModel, options ...Option) *Segmenter {
	s := &Segmenter{
		model:          model,
		maxSegmentSize: model.MaxSegmentSize(),
		noWhitespace:   model.Language().NoWhitespaceSegmentation,
	}
	for _, option := range options {
		option(s)
	}
	if s.maxSegmentSize <= 0 {
		panic(fmt.Sprintf("segmenter: invalid max segment size %d", s.maxSegmentSize))
	}
	return s
}

// MaxSegmentSize returns the window size used.
func (s *Segmenter) MaxSegmentSize() int {
	return s.maxSegmentSize
}

// Tokenize splits text into sentences. It never fails: windows without any detectable
// boundary are handled by the shift policy.
func (s *Segmenter) Tokenize(text string) []api.Sentence {
	st := newState(text)
	cursor := NewCursor(len(st.text), s.maxSegmentSize)
	for {
		window, ok := cursor.Next()
		if !ok {
			break
		}
		classes := s.classify(st.text, window)
		m := st.mark()
		for i := window.Start; i < window.End; i++ {
			s.processChar(st, i, classes[i-window.Start])
		}
		next := s.shift(st, window, m)
		if klog.V(2).Enabled() {
			klog.Infof("segmenter: window [%d, %d) -> next start %d", window.Start, window.End, next)
		}
		cursor.Advance(next)
	}
	return st.sentences
}

// classify returns the argmax class of every character in the window. Ties go to the lowest
// class index.
func (s *Segmenter) classify(text []rune, window Window) []api.CharClass {
	probs := s.model.Probabilities(text, window.Start, window.End)
	if len(probs) != window.Len() {
		panic(fmt.Sprintf("segmenter: model returned %d distributions for a window of %d characters",
			len(probs), window.Len()))
	}
	classes := make([]api.CharClass, len(probs))
	for i, p := range probs {
		classes[i] = api.CharClass(floats.MaxIdx(p))
	}
	return classes
}

// processChar feeds the character text[i], with its predicted class, to the decoding state.
func (s *Segmenter) processChar(st *state, i int, class api.CharClass) {
	r := st.text[i]
	isLast := i == len(st.text)-1
	if api.IsSpacing(r) {
		if len(st.tokenBuf) > 0 {
			st.closeToken(i - 1)
		}
		st.skipped++
		if s.spaceTokens && !isLast {
			st.addSpace(i)
		}
	} else {
		st.appendChar(i, r)
		switch {
		case isLast:
			st.closeToken(i)
		case s.isMidWord(st.text, i):
			// Boundaries are never placed inside a run of letters and digits.
		case class == api.TokenBoundary:
			st.closeToken(i)
		case class == api.SentenceBoundary:
			st.closeToken(i)
			st.closeSentence()
		}
	}
	if isLast {
		st.closeSentence()
	}
}

func (s *Segmenter) isMidWord(text []rune, i int) bool {
	return !s.noWhitespace && i+1 < len(text) && isAlphanumeric(text[i]) && isAlphanumeric(text[i+1])
}

func isAlphanumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// shift decides the start of the next window, and trims the decoding state accordingly.
func (s *Segmenter) shift(st *state, window Window, m mark) int {
	switch {
	case len(st.sentences) > m.sentences:
		last := st.sentences[len(st.sentences)-1]
		st.resetSentence()
		st.nextTokenIndex = last.Tokens[len(last.Tokens)-1].Position.Index + 1
		return last.Position.End + 1

	case len(st.sentenceTokens) > m.tokens:
		half := s.maxSegmentSize / 2
		keep := m.tokens
		for keep < len(st.sentenceTokens) {
			end := st.sentenceTokens[keep].Position.End
			keep++
			if end-window.Start+1 >= half {
				break
			}
		}
		st.sentenceTokens = st.sentenceTokens[:keep]
		kept := st.sentenceTokens[keep-1]
		st.nextTokenIndex = kept.Position.Index + 1
		st.resetToken()
		return kept.Position.End + 1

	case st.skipped > 0:
		// Only leading spaces were skipped: a space after the first character of a token
		// would have closed it.
		next := window.End
		if len(st.tokenBuf) > 0 {
			next = st.tokenStart
		}
		st.resetToken()
		return next

	default:
		// Dead window: keep the first half of the window in the unfinished token.
		half := s.maxSegmentSize / 2
		st.tokenBuf = st.tokenBuf[:len(st.tokenBuf)-half]
		st.skipped = 0
		return st.tokenStart + len(st.tokenBuf)
	}
}
