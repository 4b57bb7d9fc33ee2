// Package boundary implements the boundary model: a character encoder and classifier that
// map a window of text to one class distribution (token boundary, sentence boundary or no
// boundary) per character.
//
// The encoder is a bidirectional recurrent network over the feature vectors built by
// features.Extractor; the classifier is a linear layer followed by a softmax over the
// concatenated forward and backward hidden states.
//
// Inference (Probabilities) never modifies the model and can be called concurrently. Training
// (Forward with training set, Pass.Backward, Adam.Update) must be driven by a single goroutine.
package boundary

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/go-neuraltokenizer/tokenizers/abbreviations"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/features"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// initScale of the uniform initialization of embeddings.
const initScale = 0.1

// Config holds the hyperparameters of a Model.
type Config struct {
	// Language is the ISO 639-1 code of the text language, e.g. "en".
	Language string

	// MaxSegmentSize is the size of the windows classified in one forward pass.
	MaxSegmentSize int

	CharEmbeddingsSize int
	HiddenSize         int

	// Seed of the random initialization.
	Seed uint64
}

// DefaultConfig returns the default hyperparameters for the language.
func DefaultConfig(language string) Config {
	return Config{
		Language:           language,
		MaxSegmentSize:     50,
		CharEmbeddingsSize: 25,
		HiddenSize:         100,
		Seed:               42,
	}
}

// Validate checks the hyperparameters.
func (c Config) Validate() error {
	if c.Language == "" {
		return errors.New("language must be set")
	}
	if c.MaxSegmentSize <= 0 || c.CharEmbeddingsSize <= 0 || c.HiddenSize <= 0 {
		return errors.Errorf("sizes must be positive: max segment size %d, char embeddings size %d, hidden size %d",
			c.MaxSegmentSize, c.CharEmbeddingsSize, c.HiddenSize)
	}
	return nil
}

// Model is the boundary model. Create it with New, or Load it.
type Model struct {
	config        Config
	language      features.Language
	abbreviations *abbreviations.Table

	embeddings     *Embeddings
	forward        *recurrent
	backward       *recurrent
	classifier     *mat.Dense    // NumCharClasses x 2*hidden
	classifierBias *mat.VecDense // NumCharClasses

	// RunID identifies the training run that produced the parameters, if any.
	RunID string
}

// New creates a randomly initialized model.
func New(config Config) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid boundary model config")
	}
	rng := rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15))
	inputSize := config.CharEmbeddingsSize + features.NumExtraFeatures
	m := &Model{
		config:         config,
		language:       features.NewLanguage(config.Language),
		abbreviations:  abbreviations.ForLanguage(config.Language),
		embeddings:     newEmbeddings(config.CharEmbeddingsSize, rng),
		forward:        newRecurrent(inputSize, config.HiddenSize, rng),
		backward:       newRecurrent(inputSize, config.HiddenSize, rng),
		classifier:     randomDense(rng, int(api.NumCharClasses), 2*config.HiddenSize),
		classifierBias: mat.NewVecDense(int(api.NumCharClasses), nil),
	}
	return m, nil
}

// Config returns the hyperparameters of the model.
func (m *Model) Config() Config { return m.config }

// Language implements segmenter.BoundaryModel.
func (m *Model) Language() features.Language { return m.language }

// MaxSegmentSize implements segmenter.BoundaryModel.
func (m *Model) MaxSegmentSize() int { return m.config.MaxSegmentSize }

// Embeddings returns the character embedding table.
func (m *Model) Embeddings() *Embeddings { return m.embeddings }

// SetAbbreviations replaces the abbreviation table used by the feature extractor, e.g. with
// one loaded from a file. A nil table disables the abbreviation features.
func (m *Model) SetAbbreviations(table *abbreviations.Table) {
	m.abbreviations = table
}

// Probabilities implements segmenter.BoundaryModel. It doesn't modify the model.
func (m *Model) Probabilities(text []rune, start, end int) [][]float64 {
	return m.Forward(text, start, end, false).Probabilities()
}

// Pass holds the intermediate values of one forward pass, needed for the backward pass.
type Pass struct {
	model  *Model
	chars  []rune
	xs     []*mat.VecDense // feature vectors
	hf, hb []*mat.VecDense // forward and backward hidden states, in text order
	ys     []*mat.VecDense // concatenated hidden states
	probs  [][]float64
}

// Forward runs the model over text[start:end]. Characters before start and after end are
// used as context by the abbreviation features.
//
// If training is set, unseen characters get a new embedding instead of the "unknown" one.
func (m *Model) Forward(text []rune, start, end int, training bool) *Pass {
	var embedder features.Embedder = inferenceEmbedder{m.embeddings}
	if training {
		embedder = trainingEmbedder{m.embeddings}
	}
	extractor := features.NewExtractor(embedder, m.abbreviations)
	p := &Pass{model: m, chars: text[start:end]}
	for _, vec := range extractor.ExtractWindow(text, start, end) {
		p.xs = append(p.xs, mat.NewVecDense(len(vec), vec))
	}
	if len(p.xs) == 0 {
		return p
	}

	p.hf = m.forward.forward(p.xs)
	p.hb = reversed(m.backward.forward(reversed(p.xs)))
	hidden := m.config.HiddenSize
	logits := mat.NewVecDense(int(api.NumCharClasses), nil)
	for t := range p.xs {
		y := mat.NewVecDense(2*hidden, nil)
		copy(y.RawVector().Data[:hidden], p.hf[t].RawVector().Data)
		copy(y.RawVector().Data[hidden:], p.hb[t].RawVector().Data)
		p.ys = append(p.ys, y)

		logits.MulVec(m.classifier, y)
		logits.AddVec(logits, m.classifierBias)
		p.probs = append(p.probs, softmax(logits.RawVector().Data))
	}
	return p
}

// Probabilities returns one distribution over the api.NumCharClasses classes per character.
func (p *Pass) Probabilities() [][]float64 {
	return p.probs
}

// Loss returns the mean cross-entropy of the predictions with respect to gold.
func (p *Pass) Loss(gold []api.CharClass) float64 {
	if len(gold) == 0 {
		return 0
	}
	var loss float64
	for t, class := range gold {
		loss -= math.Log(max(p.probs[t][class], 1e-12))
	}
	return loss / float64(len(gold))
}

// OutputErrors returns the gradient of the cross-entropy loss with respect to the classifier
// logits: the predicted distribution minus 1 at the gold class.
func (p *Pass) OutputErrors(gold []api.CharClass) [][]float64 {
	errs := make([][]float64, len(gold))
	for t, class := range gold {
		e := make([]float64, len(p.probs[t]))
		copy(e, p.probs[t])
		e[class] -= 1
		errs[t] = e
	}
	return errs
}

// Backward propagates outputErrors (gradients with respect to the classifier logits, one per
// character) through the classifier and the encoder.
//
// It accumulates the parameter gradients and the embedding gradients, keyed by character, into
// grads, and returns the gradients with respect to the input feature vectors.
func (p *Pass) Backward(outputErrors [][]float64, grads *Gradients) [][]float64 {
	if len(outputErrors) != len(p.xs) {
		panic(errors.Errorf("boundary: %d output errors for a pass over %d characters", len(outputErrors), len(p.xs)))
	}
	m := p.model
	hidden := m.config.HiddenSize
	dhf := make([]*mat.VecDense, len(p.xs))
	dhb := make([]*mat.VecDense, len(p.xs))
	var dy mat.VecDense
	for t, e := range outputErrors {
		de := mat.NewVecDense(len(e), e)
		grads.classifier.RankOne(grads.classifier, 1, de, p.ys[t])
		grads.classifierBias.AddVec(grads.classifierBias, de)
		dy.MulVec(m.classifier.T(), de)
		data := dy.RawVector().Data
		dhf[t] = mat.NewVecDense(hidden, append([]float64(nil), data[:hidden]...))
		dhb[t] = mat.NewVecDense(hidden, append([]float64(nil), data[hidden:]...))
	}

	dxf := m.forward.backward(p.xs, p.hf, dhf, grads.forward)
	dxb := reversed(m.backward.backward(reversed(p.xs), reversed(p.hb), reversed(dhb), grads.backward))

	embeddingSize := m.config.CharEmbeddingsSize
	inputErrors := make([][]float64, len(p.xs))
	for t := range p.xs {
		dx := make([]float64, dxf[t].Len())
		floats.Add(dx, dxf[t].RawVector().Data)
		floats.Add(dx, dxb[t].RawVector().Data)
		inputErrors[t] = dx
		grads.addEmbedding(p.chars[t], dx[:embeddingSize])
	}
	grads.Count++
	return inputErrors
}

// softmax returns the normalized exponentials of logits.
func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	maxLogit := floats.Max(logits)
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - maxLogit)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}
