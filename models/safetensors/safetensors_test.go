package safetensors

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTensors = []Float64Tensor{
	{Name: "encoder.weight", Shape: []int{2, 3}, Values: []float64{1, -2, 3.5, math.Pi, 0, -1e-300}},
	{Name: "encoder.bias", Shape: []int{3}, Values: []float64{0.25, 0.5, 0.75}},
	{Name: "scalarish", Shape: []int{1}, Values: []float64{math.Inf(1)}},
}

func writeTestFile(t *testing.T) string {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testTensors, map[string]string{"language": "en"}))
	filePath := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, os.WriteFile(filePath, buf.Bytes(), 0o644))
	return filePath
}

func TestWriteHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testTensors, nil))
	data := buf.Bytes()
	headerSize := binary.LittleEndian.Uint64(data[:8])
	assert.Zero(t, headerSize%headerAlignment)
	assert.Equal(t, int(8+headerSize)+8*10, len(data))
}

func TestRoundTrip(t *testing.T) {
	reader, err := Open(writeTestFile(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, reader.Close()) }()

	assert.Equal(t, map[string]string{"language": "en"}, reader.Metadata())
	assert.Equal(t, []string{"encoder.bias", "encoder.weight", "scalarish"}, reader.Header.Names())

	for _, want := range testTensors {
		tensor, err := reader.ReadTensor(want.Name)
		require.NoError(t, err)
		assert.Equal(t, want.Shape, tensor.Shape().Dimensions)
		values, err := Float64Values(tensor)
		require.NoError(t, err)
		assert.Equal(t, want.Values, values)
	}

	tensor, err := reader.ReadTensor("encoder.weight")
	require.NoError(t, err)
	assert.Equal(t, "(Float64)[2 3]", tensor.Shape().String())
}

func TestIterTensors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testTensors, nil))
	reader, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	var names []string
	for tensorAndName, err := range reader.IterTensors() {
		require.NoError(t, err)
		names = append(names, tensorAndName.Name)
	}
	// File order, not alphabetical order.
	assert.Equal(t, []string{"encoder.weight", "encoder.bias", "scalarish"}, names)
}

func TestReadErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testTensors, nil))
	data := buf.Bytes()

	// Truncated data: caught by the header check when the size is known, else when reading.
	_, err := NewReader(bytes.NewReader(data[:len(data)-4]))
	require.Error(t, err)
	reader, err := NewReader(unsizedReader{bytes.NewReader(data[:len(data)-4])})
	require.NoError(t, err)
	_, err = reader.ReadTensor("scalarish")
	require.Error(t, err)

	// Missing tensor.
	_, err = reader.ReadTensor("missing")
	require.Error(t, err)

	// Garbage header.
	_, err = NewReader(bytes.NewReader([]byte{4, 0, 0, 0, 0, 0, 0, 0, '{', 'x', 'y', 'z'}))
	require.Error(t, err)

	// Too short to even hold the header size.
	_, err = NewReader(bytes.NewReader([]byte{1, 2}))
	require.Error(t, err)
}

// unsizedReader hides the Size method of the wrapped reader.
type unsizedReader struct {
	io.ReaderAt
}

// rawFile builds safetensors contents with the given JSON header and dataSize zero bytes of
// tensor data.
func rawFile(header string, dataSize int) []byte {
	data := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
	data = append(data, header...)
	return append(data, make([]byte, dataSize)...)
}

func TestHeaderValidation(t *testing.T) {
	valid := rawFile(`{"x":{"dtype":"F64","shape":[2,0],"data_offsets":[0,0]},"y":{"dtype":"F64","shape":[2],"data_offsets":[0,16]}}`, 16)
	_, err := NewReader(bytes.NewReader(valid))
	require.NoError(t, err)

	for name, header := range map[string]string{
		"negative dimension": `{"x":{"dtype":"F64","shape":[-2],"data_offsets":[0,16]}}`,
		"huge dimension":     `{"x":{"dtype":"F64","shape":[4000000000000],"data_offsets":[0,32000000000000]}}`,
		"overflowing shape":  `{"x":{"dtype":"F64","shape":[4294967296,4294967296],"data_offsets":[0,16]}}`,
		"size mismatch":      `{"x":{"dtype":"F64","shape":[3],"data_offsets":[0,16]}}`,
		"reversed offsets":   `{"x":{"dtype":"F64","shape":[2],"data_offsets":[16,0]}}`,
		"negative offsets":   `{"x":{"dtype":"F64","shape":[2],"data_offsets":[-16,0]}}`,
		"unknown dtype":      `{"x":{"dtype":"Q7","shape":[2],"data_offsets":[0,16]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(rawFile(header, 16)))
			require.Error(t, err)
		})
	}

	// Without a known size, the huge tensor is still rejected before being allocated.
	data := rawFile(`{"x":{"dtype":"F64","shape":[4000000000000],"data_offsets":[0,16]}}`, 16)
	_, err = NewReader(unsizedReader{bytes.NewReader(data)})
	require.Error(t, err)
}

func TestWriteErrors(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Float64Tensor{{Name: "x", Shape: []int{2, 2}, Values: []float64{1}}}, nil)
	require.Error(t, err)

	err = Write(&buf, []Float64Tensor{{Name: "x", Shape: []int{1}, Values: []float64{1}}, {Name: "x", Shape: []int{1}, Values: []float64{2}}}, nil)
	require.Error(t, err)

	err = Write(&buf, []Float64Tensor{{Name: MetadataKey, Shape: []int{1}, Values: []float64{1}}}, nil)
	require.Error(t, err)
}
