package boundary

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// recurrent is a simple (Elman) recurrent layer: h[t] = tanh(input·x[t] + recurrent·h[t-1] + bias).
type recurrent struct {
	input     *mat.Dense // hidden x inputSize
	recurrent *mat.Dense // hidden x hidden
	bias      *mat.VecDense
}

func newRecurrent(inputSize, hidden int, rng *rand.Rand) *recurrent {
	return &recurrent{
		input:     randomDense(rng, hidden, inputSize),
		recurrent: randomDense(rng, hidden, hidden),
		bias:      mat.NewVecDense(hidden, nil),
	}
}

// zeroLike returns a layer of the same shape as l with all values set to 0, used to
// accumulate gradients.
func (l *recurrent) zeroLike() *recurrent {
	hidden, inputSize := l.input.Dims()
	return &recurrent{
		input:     mat.NewDense(hidden, inputSize, nil),
		recurrent: mat.NewDense(hidden, hidden, nil),
		bias:      mat.NewVecDense(hidden, nil),
	}
}

func (l *recurrent) reset() {
	l.input.Zero()
	l.recurrent.Zero()
	l.bias.Zero()
}

func (l *recurrent) hiddenSize() int {
	return l.bias.Len()
}

// forward returns the hidden state after each input.
func (l *recurrent) forward(xs []*mat.VecDense) []*mat.VecDense {
	hidden := l.hiddenSize()
	hs := make([]*mat.VecDense, len(xs))
	prev := mat.NewVecDense(hidden, nil)
	var rec mat.VecDense
	for t, x := range xs {
		h := mat.NewVecDense(hidden, nil)
		h.MulVec(l.input, x)
		rec.MulVec(l.recurrent, prev)
		h.AddVec(h, &rec)
		h.AddVec(h, l.bias)
		data := h.RawVector().Data
		for i, v := range data {
			data[i] = math.Tanh(v)
		}
		hs[t] = h
		prev = h
	}
	return hs
}

// backward propagates dhs, the gradients of the loss with respect to the hidden states returned
// by forward(xs), through time. It accumulates the parameter gradients into grads and returns
// the gradients with respect to xs.
func (l *recurrent) backward(xs, hs, dhs []*mat.VecDense, grads *recurrent) []*mat.VecDense {
	hidden := l.hiddenSize()
	_, inputSize := l.input.Dims()
	dxs := make([]*mat.VecDense, len(xs))
	zero := mat.NewVecDense(hidden, nil)
	next := mat.NewVecDense(hidden, nil) // gradient flowing back from step t+1
	for t := len(xs) - 1; t >= 0; t-- {
		dz := mat.NewVecDense(hidden, nil)
		dz.AddVec(dhs[t], next)
		dzData, hData := dz.RawVector().Data, hs[t].RawVector().Data
		for i := range dzData {
			dzData[i] *= 1 - hData[i]*hData[i]
		}
		prev := zero
		if t > 0 {
			prev = hs[t-1]
		}
		grads.input.RankOne(grads.input, 1, dz, xs[t])
		grads.recurrent.RankOne(grads.recurrent, 1, dz, prev)
		grads.bias.AddVec(grads.bias, dz)

		dx := mat.NewVecDense(inputSize, nil)
		dx.MulVec(l.input.T(), dz)
		dxs[t] = dx
		next = mat.NewVecDense(hidden, nil)
		next.MulVec(l.recurrent.T(), dz)
	}
	return dxs
}

func randomDense(rng *rand.Rand, rows, cols int) *mat.Dense {
	// Xavier/Glorot uniform initialization.
	scale := math.Sqrt(6 / float64(rows+cols))
	return mat.NewDense(rows, cols, randomVector(rng, rows*cols, scale))
}

func reversed[T any](s []T) []T {
	r := slices.Clone(s)
	slices.Reverse(r)
	return r
}
