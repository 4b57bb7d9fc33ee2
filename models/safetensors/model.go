package safetensors

import (
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// TensorMetadata represents metadata for a single tensor in a safetensors file.
type TensorMetadata struct {
	Name        string   `json:"-"`            // Tensor name (from map key)
	Dtype       string   `json:"dtype"`        // Data type: F32, F64, I32, I64, etc.
	Shape       []int    `json:"shape"`        // Tensor dimensions
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end] byte offsets after the header
}

// Size returns the number of elements of the tensor.
func (tm *TensorMetadata) Size() int {
	size := 1
	for _, dim := range tm.Shape {
		size *= dim
	}
	return size
}

// TensorAndName holds a tensor name and its GoMLX tensor data.
type TensorAndName struct {
	Name   string
	Tensor *tensors.Tensor
}

// Names returns the sorted names of the tensors in the header.
func (h *Header) Names() []string {
	names := make([]string, 0, len(h.Tensors))
	for name := range h.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
