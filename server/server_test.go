package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode"

	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// punctModel predicts sentence boundaries at '.' and '!', and token boundaries at the end of
// letter runs.
type punctModel struct{}

func (punctModel) Probabilities(text []rune, start, end int) [][]float64 {
	var probs [][]float64
	for i := start; i < end; i++ {
		p := make([]float64, api.NumCharClasses)
		switch r := text[i]; {
		case r == '.' || r == '!':
			p[api.SentenceBoundary] = 1
		case unicode.IsLetter(r) && (i+1 == len(text) || !unicode.IsLetter(text[i+1])):
			p[api.TokenBoundary] = 1
		default:
			p[api.NoBoundary] = 1
		}
		probs = append(probs, p)
	}
	return probs
}

func (punctModel) Language() features.Language { return features.NewLanguage("en") }
func (punctModel) MaxSegmentSize() int          { return 20 }

func post(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/tokenize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New(punctModel{}, 1<<20)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","language":"en"}`, rec.Body.String())
}

func TestTokenize(t *testing.T) {
	s := New(punctModel{}, 1<<20)
	rec := post(t, s, `{"text": "Hello world. Bye!"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp TokenizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sentences, 2)
	assert.Equal(t, "Hello world.", resp.Sentences[0].Text)
	assert.Equal(t, api.Position{Start: 13, End: 16, Index: 1}, resp.Sentences[1].Position)
	var forms []string
	for _, token := range resp.Sentences[0].Tokens {
		forms = append(forms, token.Form)
	}
	assert.Equal(t, []string{"Hello", "world", "."}, forms)

	rec = post(t, s, `{"text": "Hello world.", "spaceTokens": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sentences, 1)
	require.Len(t, resp.Sentences[0].Tokens, 4)
	assert.True(t, resp.Sentences[0].Tokens[1].IsSpace)

	rec = post(t, s, `{"text": "   "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sentences":[]}`, rec.Body.String())
}

func TestTokenizeErrors(t *testing.T) {
	s := New(punctModel{}, 64)
	rec := post(t, s, `{"text": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request")

	rec = post(t, s, `{"text": "`+strings.Repeat("a", 100)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tokenize", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListenAndServeStops(t *testing.T) {
	s := New(punctModel{}, 1<<20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.ListenAndServe(ctx, "127.0.0.1:0"))
}
