package safetensors

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Float64Tensor is a named F64 tensor to be written.
type Float64Tensor struct {
	Name   string
	Shape  []int
	Values []float64 // row-major
}

// headerAlignment of the tensor data: the header is padded with spaces up to a multiple of it.
const headerAlignment = 8

// Write the tensors, in the given order, and the metadata to w in safetensors format.
func Write(w io.Writer, tensors []Float64Tensor, metadata map[string]string) error {
	rawHeader := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		rawHeader[MetadataKey] = metadata
	}
	var offset int64
	for _, t := range tensors {
		if t.Name == MetadataKey {
			return errors.Errorf("tensor name %q is reserved", t.Name)
		}
		if _, found := rawHeader[t.Name]; found {
			return errors.Errorf("duplicate tensor %q", t.Name)
		}
		meta := &TensorMetadata{Dtype: "F64", Shape: t.Shape}
		if meta.Size() != len(t.Values) {
			return errors.Errorf("tensor %q has shape %v but %d values", t.Name, t.Shape, len(t.Values))
		}
		size := int64(8 * len(t.Values))
		meta.DataOffsets = [2]int64{offset, offset + size}
		offset += size
		rawHeader[t.Name] = meta
	}

	headerBytes, err := json.Marshal(rawHeader)
	if err != nil {
		return errors.Wrap(err, "failed to encode header JSON")
	}
	if pad := (headerAlignment - (len(headerBytes) % headerAlignment)) % headerAlignment; pad > 0 {
		headerBytes = append(headerBytes, bytes.Repeat([]byte{' '}, pad)...)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return errors.Wrap(err, "failed to write header size")
	}
	if _, err := bw.Write(headerBytes); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	var buf [8]byte
	for _, t := range tensors {
		for _, v := range t.Values {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			if _, err := bw.Write(buf[:]); err != nil {
				return errors.Wrapf(err, "failed to write tensor %s", t.Name)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush safetensors data")
	}
	return nil
}
