package segmenter

import (
	"slices"

	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
)

// state of one Tokenize call.
type state struct {
	text []rune

	// sentences completed so far: this is the output.
	sentences []api.Sentence

	// sentenceTokens are the tokens of the sentence in progress.
	sentenceTokens []api.Token

	// tokenBuf holds the characters of the token in progress, which starts at tokenStart.
	tokenBuf   []rune
	tokenStart int

	// skipped counts the whitespace characters skipped since the last token was closed.
	skipped int

	nextTokenIndex int
}

// mark records the size of the output before a window is processed.
type mark struct {
	sentences, tokens int
}

func newState(text string) *state {
	return &state{text: []rune(text)}
}

func (st *state) mark() mark {
	return mark{sentences: len(st.sentences), tokens: len(st.sentenceTokens)}
}

func (st *state) appendChar(i int, r rune) {
	if len(st.tokenBuf) == 0 {
		st.tokenStart = i
	}
	st.tokenBuf = append(st.tokenBuf, r)
}

// closeToken closes the token in progress, which ends at end (inclusive).
func (st *state) closeToken(end int) {
	st.sentenceTokens = append(st.sentenceTokens, api.Token{
		Form: string(st.tokenBuf),
		Position: api.Position{
			Start: st.tokenStart,
			End:   end,
			Index: st.nextTokenIndex,
		},
	})
	st.nextTokenIndex++
	st.resetToken()
}

// addSpace emits the whitespace character at i as a token. Sentences never start with one.
func (st *state) addSpace(i int) {
	if len(st.sentenceTokens) == 0 {
		return
	}
	st.sentenceTokens = append(st.sentenceTokens, api.Token{
		Form:     string(st.text[i]),
		Position: api.Position{Start: i, End: i, Index: st.nextTokenIndex},
		IsSpace:  true,
	})
	st.nextTokenIndex++
}

// closeSentence turns the tokens in progress into a sentence, if there are any.
func (st *state) closeSentence() {
	// Sentences never end with whitespace tokens.
	for len(st.sentenceTokens) > 0 && st.sentenceTokens[len(st.sentenceTokens)-1].IsSpace {
		st.sentenceTokens = st.sentenceTokens[:len(st.sentenceTokens)-1]
		st.nextTokenIndex--
	}
	if len(st.sentenceTokens) == 0 {
		return
	}
	start := st.sentenceTokens[0].Position.Start
	end := st.sentenceTokens[len(st.sentenceTokens)-1].Position.End
	st.sentences = append(st.sentences, api.Sentence{
		Tokens: slices.Clone(st.sentenceTokens),
		Position: api.Position{
			Start: start,
			End:   end,
			Index: len(st.sentences),
		},
		Text: string(st.text[start : end+1]),
	})
	st.sentenceTokens = st.sentenceTokens[:0]
}

func (st *state) resetToken() {
	st.tokenBuf = st.tokenBuf[:0]
	st.skipped = 0
}

func (st *state) resetSentence() {
	st.sentenceTokens = st.sentenceTokens[:0]
	st.resetToken()
}
