package boundary

import (
	"bytes"
	"encoding/json"
	"io"
	"maps"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/gomlx/go-neuraltokenizer/internal/files"
	"github.com/gomlx/go-neuraltokenizer/models/safetensors"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/abbreviations"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/features"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Format identifies the model blob layout, stored in the "format" metadata key.
const Format = "neuraltokenizer/1"

// ErrMalformedModel is returned (wrapped) when a model blob can't be decoded.
var ErrMalformedModel = errors.New("malformed boundary model")

// Metadata keys of the model blob.
const (
	keyFormat             = "format"
	keyLanguage           = "language"
	keyMaxSegmentSize     = "max_segment_size"
	keyCharEmbeddingsSize = "char_embeddings_size"
	keyHiddenSize         = "hidden_size"
	keyAlphabet           = "alphabet"
	keyRunID              = "run_id"
)

// Tensor names of the model blob.
const (
	tensorEmbeddings      = "embeddings.weight"
	tensorUnknown         = "embeddings.unknown"
	tensorClassifier      = "classifier.weight"
	tensorClassifierBias  = "classifier.bias"
	encoderForwardPrefix  = "encoder.forward."
	encoderBackwardPrefix = "encoder.backward."
	recurrentInputSuffix  = "input"
	recurrentHiddenSuffix = "recurrent"
	recurrentBiasSuffix   = "bias"
)

// Write the model to w, in safetensors format.
func (m *Model) Write(w io.Writer) error {
	alphabet := m.embeddings.Alphabet()
	codePoints := make([]int32, len(alphabet))
	embeddings := make([]float64, 0, len(alphabet)*m.embeddings.Size())
	for i, r := range alphabet {
		codePoints[i] = r
		v, _ := m.embeddings.Get(r)
		embeddings = append(embeddings, v...)
	}
	alphabetJSON, err := json.Marshal(codePoints)
	if err != nil {
		return errors.Wrap(err, "failed to encode alphabet")
	}
	metadata := map[string]string{
		keyFormat:             Format,
		keyLanguage:           m.config.Language,
		keyMaxSegmentSize:     strconv.Itoa(m.config.MaxSegmentSize),
		keyCharEmbeddingsSize: strconv.Itoa(m.config.CharEmbeddingsSize),
		keyHiddenSize:         strconv.Itoa(m.config.HiddenSize),
		keyAlphabet:           string(alphabetJSON),
		keyRunID:              m.RunID,
	}

	var blob []safetensors.Float64Tensor
	if len(alphabet) > 0 {
		blob = append(blob, safetensors.Float64Tensor{
			Name: tensorEmbeddings, Shape: []int{len(alphabet), m.embeddings.Size()}, Values: embeddings})
	}
	blob = append(blob, safetensors.Float64Tensor{
		Name: tensorUnknown, Shape: []int{m.embeddings.Size()}, Values: m.embeddings.unknown})
	blob = append(blob, recurrentTensors(encoderForwardPrefix, m.forward)...)
	blob = append(blob, recurrentTensors(encoderBackwardPrefix, m.backward)...)
	blob = append(blob, denseTensor(tensorClassifier, m.classifier), vecTensor(tensorClassifierBias, m.classifierBias))
	return safetensors.Write(w, blob, metadata)
}

// Save writes the model to filePath atomically.
func (m *Model) Save(filePath string) error {
	if err := files.WriteAtomic(filePath, m.Write); err != nil {
		return errors.WithMessagef(err, "failed to save boundary model to %q", filePath)
	}
	klog.V(1).Infof("Saved boundary model (%d characters) to %q", m.embeddings.Len(), filePath)
	return nil
}

// Read a model written with Model.Write.
func Read(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read boundary model")
	}
	reader, err := safetensors.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrMalformedModel, err.Error())
	}
	return decode(reader)
}

// Load a model saved with Model.Save. The file is memory-mapped while decoding.
func Load(filePath string) (*Model, error) {
	if !files.Exists(filePath) {
		return nil, errors.Errorf("boundary model %q not found", filePath)
	}
	reader, err := safetensors.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedModel, "failed to open %q: %v", filePath, err)
	}
	defer func() { _ = reader.Close() }()
	m, err := decode(reader)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading %q", filePath)
	}
	return m, nil
}

func decode(reader *safetensors.Reader) (*Model, error) {
	metadata := reader.Metadata()
	if format := metadata[keyFormat]; format != Format {
		return nil, errors.Wrapf(ErrMalformedModel, "unknown format %q, wanted %q", format, Format)
	}
	config := Config{Language: metadata[keyLanguage]}
	for key, field := range map[string]*int{
		keyMaxSegmentSize:     &config.MaxSegmentSize,
		keyCharEmbeddingsSize: &config.CharEmbeddingsSize,
		keyHiddenSize:         &config.HiddenSize,
	} {
		v, err := strconv.Atoi(metadata[key])
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedModel, "metadata %q: %v", key, err)
		}
		*field = v
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(ErrMalformedModel, err.Error())
	}
	var codePoints []int32
	if err := json.Unmarshal([]byte(metadata[keyAlphabet]), &codePoints); err != nil {
		return nil, errors.Wrapf(ErrMalformedModel, "metadata %q: %v", keyAlphabet, err)
	}

	hidden, embSize := config.HiddenSize, config.CharEmbeddingsSize
	inputSize := embSize + features.NumExtraFeatures
	d := &decoder{tensors: make(map[string]*tensors.Tensor)}
	for tensorAndName, err := range reader.IterTensors() {
		if err != nil {
			return nil, errors.Wrap(ErrMalformedModel, err.Error())
		}
		d.tensors[tensorAndName.Name] = tensorAndName.Tensor
	}
	var embeddings []float64
	if len(codePoints) > 0 {
		embeddings = d.read(tensorEmbeddings, len(codePoints), embSize)
	}
	unknown := d.read(tensorUnknown, embSize)
	forward := d.readRecurrent(encoderForwardPrefix, inputSize, hidden)
	backward := d.readRecurrent(encoderBackwardPrefix, inputSize, hidden)
	classifier := d.read(tensorClassifier, int(api.NumCharClasses), 2*hidden)
	classifierBias := d.read(tensorClassifierBias, int(api.NumCharClasses))
	if d.err != nil {
		return nil, d.err
	}
	if len(d.tensors) > 0 {
		unexpected := slices.Sorted(maps.Keys(d.tensors))
		return nil, errors.Wrapf(ErrMalformedModel, "unexpected tensors %q", unexpected)
	}

	// The random source is only used for characters added by further training.
	rng := rand.New(rand.NewPCG(uint64(len(codePoints)), config.Seed))
	m := &Model{
		config:         config,
		language:       features.NewLanguage(config.Language),
		abbreviations:  abbreviations.ForLanguage(config.Language),
		embeddings:     newEmbeddings(embSize, rng),
		forward:        forward,
		backward:       backward,
		classifier:     mat.NewDense(int(api.NumCharClasses), 2*hidden, classifier),
		classifierBias: mat.NewVecDense(int(api.NumCharClasses), classifierBias),
		RunID:          metadata[keyRunID],
	}
	m.embeddings.unknown = unknown
	for i, cp := range codePoints {
		m.embeddings.set(cp, embeddings[i*embSize:(i+1)*embSize])
	}
	return m, nil
}

// decoder takes the tensors of the blob checking their shapes, and keeps the first error.
// Tensors taken are removed from the map, so what is left at the end was not expected.
type decoder struct {
	tensors map[string]*tensors.Tensor
	err     error
}

func (d *decoder) read(name string, shape ...int) []float64 {
	if d.err != nil {
		return nil
	}
	t, found := d.tensors[name]
	if !found {
		d.err = errors.Wrapf(ErrMalformedModel, "tensor %q not found", name)
		return nil
	}
	delete(d.tensors, name)
	values, err := safetensors.Float64Values(t)
	if err != nil {
		d.err = errors.Wrapf(ErrMalformedModel, "tensor %q: %v", name, err)
		return nil
	}
	if gotShape := t.Shape().Dimensions; !slices.Equal(shape, gotShape) {
		d.err = errors.Wrapf(ErrMalformedModel, "tensor %q has shape %v, wanted %v", name, gotShape, shape)
		return nil
	}
	return values
}

func (d *decoder) readRecurrent(prefix string, inputSize, hidden int) *recurrent {
	input := d.read(prefix+recurrentInputSuffix, hidden, inputSize)
	rec := d.read(prefix+recurrentHiddenSuffix, hidden, hidden)
	bias := d.read(prefix+recurrentBiasSuffix, hidden)
	if d.err != nil {
		return nil
	}
	return &recurrent{
		input:     mat.NewDense(hidden, inputSize, input),
		recurrent: mat.NewDense(hidden, hidden, rec),
		bias:      mat.NewVecDense(hidden, bias),
	}
}

func recurrentTensors(prefix string, l *recurrent) []safetensors.Float64Tensor {
	return []safetensors.Float64Tensor{
		denseTensor(prefix+recurrentInputSuffix, l.input),
		denseTensor(prefix+recurrentHiddenSuffix, l.recurrent),
		vecTensor(prefix+recurrentBiasSuffix, l.bias),
	}
}

func denseTensor(name string, m *mat.Dense) safetensors.Float64Tensor {
	rows, cols := m.Dims()
	return safetensors.Float64Tensor{Name: name, Shape: []int{rows, cols}, Values: m.RawMatrix().Data}
}

func vecTensor(name string, v *mat.VecDense) safetensors.Float64Tensor {
	return safetensors.Float64Tensor{Name: name, Shape: []int{v.Len()}, Values: v.RawVector().Data}
}
