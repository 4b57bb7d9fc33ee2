package boundary

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam optimizer, with first and second moments kept per parameter and per character embedding.
//
// An Adam is bound to the first model it updates.
type Adam struct {
	LearningRate float64
	Beta1, Beta2 float64
	Epsilon      float64

	// ClipValue, if > 0, clips each gradient value to [-ClipValue, ClipValue].
	ClipValue float64

	step       int
	moments    map[*float64][2][]float64 // keyed by the first value of a parameter tensor
	embeddings map[rune][2][]float64
}

// NewAdam returns an Adam optimizer with the usual defaults and the given learning rate.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		ClipValue:    5,
		moments:      make(map[*float64][2][]float64),
		embeddings:   make(map[rune][2][]float64),
	}
}

// Update applies one optimization step to m with the gradients g, averaged over batchSize.
// Embedding gradients of characters unknown to m (seen only during inference) are ignored.
func (a *Adam) Update(m *Model, g *Gradients, batchSize int) {
	if batchSize <= 0 {
		batchSize = 1
	}
	a.step++
	scale := 1 / float64(batchSize)
	a.updateDense(m.forward.input, g.forward.input, scale)
	a.updateDense(m.forward.recurrent, g.forward.recurrent, scale)
	a.updateVec(m.forward.bias, g.forward.bias, scale)
	a.updateDense(m.backward.input, g.backward.input, scale)
	a.updateDense(m.backward.recurrent, g.backward.recurrent, scale)
	a.updateVec(m.backward.bias, g.backward.bias, scale)
	a.updateDense(m.classifier, g.classifier, scale)
	a.updateVec(m.classifierBias, g.classifierBias, scale)

	for r, grad := range g.embeddings {
		params, found := m.embeddings.Get(r)
		if !found {
			continue
		}
		moments, found := a.embeddings[r]
		if !found {
			moments = [2][]float64{make([]float64, len(params)), make([]float64, len(params))}
			a.embeddings[r] = moments
		}
		a.apply(params, grad, moments, scale)
	}
}

// Step returns the number of updates applied so far.
func (a *Adam) Step() int { return a.step }

func (a *Adam) updateDense(params, grads *mat.Dense, scale float64) {
	a.update(params.RawMatrix().Data, grads.RawMatrix().Data, scale)
}

func (a *Adam) updateVec(params, grads *mat.VecDense, scale float64) {
	a.update(params.RawVector().Data, grads.RawVector().Data, scale)
}

func (a *Adam) update(params, grads []float64, scale float64) {
	if len(params) == 0 {
		return
	}
	key := &params[0]
	moments, found := a.moments[key]
	if !found {
		moments = [2][]float64{make([]float64, len(params)), make([]float64, len(params))}
		a.moments[key] = moments
	}
	a.apply(params, grads, moments, scale)
}

func (a *Adam) apply(params, grads []float64, moments [2][]float64, scale float64) {
	m1, m2 := moments[0], moments[1]
	correction1 := 1 - math.Pow(a.Beta1, float64(a.step))
	correction2 := 1 - math.Pow(a.Beta2, float64(a.step))
	for i, g := range grads {
		g *= scale
		if a.ClipValue > 0 {
			g = max(-a.ClipValue, min(a.ClipValue, g))
		}
		m1[i] = a.Beta1*m1[i] + (1-a.Beta1)*g
		m2[i] = a.Beta2*m2[i] + (1-a.Beta2)*g*g
		params[i] -= a.LearningRate * (m1[i] / correction1) / (math.Sqrt(m2[i]/correction2) + a.Epsilon)
	}
}
