package boundary

import (
	"math/rand/v2"
	"slices"
)

// Embeddings is the character embedding table.
//
// Lookups with GetOrUnknown never modify the table, and can run concurrently. GetOrInsert
// (training only) adds vectors for unseen characters.
type Embeddings struct {
	size    int
	vectors map[rune][]float64
	order   []rune // insertion order, used as row order when saving
	unknown []float64
	rng     *rand.Rand
}

func newEmbeddings(size int, rng *rand.Rand) *Embeddings {
	return &Embeddings{
		size:    size,
		vectors: make(map[rune][]float64),
		unknown: randomVector(rng, size, initScale),
		rng:     rng,
	}
}

// Size of each embedding vector.
func (e *Embeddings) Size() int { return e.size }

// Len returns the number of known characters.
func (e *Embeddings) Len() int { return len(e.order) }

// Alphabet returns the known characters, in insertion order.
func (e *Embeddings) Alphabet() []rune { return slices.Clone(e.order) }

// Get returns the embedding of r, if known.
func (e *Embeddings) Get(r rune) ([]float64, bool) {
	v, found := e.vectors[r]
	return v, found
}

// GetOrUnknown returns the embedding of r, or the reserved "unknown" vector.
func (e *Embeddings) GetOrUnknown(r rune) []float64 {
	if v, found := e.vectors[r]; found {
		return v
	}
	return e.unknown
}

// GetOrInsert returns the embedding of r, creating a randomly initialized one if needed.
func (e *Embeddings) GetOrInsert(r rune) []float64 {
	if v, found := e.vectors[r]; found {
		return v
	}
	v := randomVector(e.rng, e.size, initScale)
	e.set(r, v)
	return v
}

func (e *Embeddings) set(r rune, v []float64) {
	if _, found := e.vectors[r]; !found {
		e.order = append(e.order, r)
	}
	e.vectors[r] = v
}

// inferenceEmbedder implements features.Embedder without modifying the table.
type inferenceEmbedder struct{ *Embeddings }

func (e inferenceEmbedder) Embedding(r rune) []float64 { return e.GetOrUnknown(r) }
func (e inferenceEmbedder) EmbeddingSize() int         { return e.size }

// trainingEmbedder implements features.Embedder, growing the table with unseen characters.
type trainingEmbedder struct{ *Embeddings }

func (e trainingEmbedder) Embedding(r rune) []float64 { return e.GetOrInsert(r) }
func (e trainingEmbedder) EmbeddingSize() int         { return e.size }

func randomVector(rng *rand.Rand, size int, scale float64) []float64 {
	v := make([]float64, size)
	for i := range v {
		v[i] = (2*rng.Float64() - 1) * scale
	}
	return v
}
