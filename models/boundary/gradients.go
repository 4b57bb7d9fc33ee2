package boundary

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Gradients accumulates the gradients of the loss with respect to the model parameters, over
// one or more calls to Pass.Backward.
type Gradients struct {
	embeddings     map[rune][]float64
	forward        *recurrent
	backward       *recurrent
	classifier     *mat.Dense
	classifierBias *mat.VecDense

	// Count of the Backward calls accumulated.
	Count int
}

// NewGradients returns zero gradients shaped like the parameters of m.
func NewGradients(m *Model) *Gradients {
	rows, cols := m.classifier.Dims()
	return &Gradients{
		embeddings:     make(map[rune][]float64),
		forward:        m.forward.zeroLike(),
		backward:       m.backward.zeroLike(),
		classifier:     mat.NewDense(rows, cols, nil),
		classifierBias: mat.NewVecDense(m.classifierBias.Len(), nil),
	}
}

// Reset zeroes all gradients.
func (g *Gradients) Reset() {
	clear(g.embeddings)
	g.forward.reset()
	g.backward.reset()
	g.classifier.Zero()
	g.classifierBias.Zero()
	g.Count = 0
}

// Embedding returns the accumulated gradient of the embedding of r, or nil.
func (g *Gradients) Embedding(r rune) []float64 {
	return g.embeddings[r]
}

func (g *Gradients) addEmbedding(r rune, grad []float64) {
	acc, found := g.embeddings[r]
	if !found {
		acc = make([]float64, len(grad))
		g.embeddings[r] = acc
	}
	floats.Add(acc, grad)
}
