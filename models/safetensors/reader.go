package safetensors

import (
	"encoding/binary"
	"io"
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// Reader provides access to the tensors of a safetensors file through an io.ReaderAt.
type Reader struct {
	reader     io.ReaderAt
	closer     io.Closer
	dataOffset int64
	Header     *Header
}

// Open memory-maps the given .safetensors file and parses its header.
func Open(filePath string) (*Reader, error) {
	mapped, err := mmap.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %s", filePath)
	}
	r, err := newReader(mapped, int64(mapped.Len()))
	if err != nil {
		_ = mapped.Close()
		return nil, errors.WithMessagef(err, "while parsing header of %s", filePath)
	}
	r.closer = mapped
	return r, nil
}

// NewReader parses the header of the safetensors contents in r. If r implements
// Size() int64 (like bytes.Reader), the tensor data offsets are checked against it.
func NewReader(r io.ReaderAt) (*Reader, error) {
	size := int64(-1)
	if sized, ok := r.(interface{ Size() int64 }); ok {
		size = sized.Size()
	}
	return newReader(r, size)
}

func newReader(r io.ReaderAt, size int64) (*Reader, error) {
	header, dataOffset, err := parseHeader(r, size)
	if err != nil {
		return nil, err
	}
	return &Reader{
		reader:     r,
		dataOffset: dataOffset,
		Header:     header,
	}, nil
}

// Close releases the underlying memory-mapped file, if any.
func (mr *Reader) Close() error {
	if mr.closer == nil {
		return nil
	}
	return mr.closer.Close()
}

// Metadata returns the "__metadata__" map of the file.
func (mr *Reader) Metadata() map[string]string {
	return mr.Header.Metadata
}

// ReadTensor reads a tensor by name into a GoMLX tensor.
func (mr *Reader) ReadTensor(tensorName string) (*tensors.Tensor, error) {
	meta, ok := mr.Header.Tensors[tensorName]
	if !ok {
		return nil, errors.Errorf("tensor %s not found", tensorName)
	}

	dtype, err := dtypeToGoMLX(meta.Dtype)
	if err != nil {
		return nil, err
	}
	// Shape and offsets were checked by parseHeader.
	t := tensors.FromShape(shapes.Make(dtype, meta.Shape...))

	// Read directly into tensor memory
	tensorOffset := mr.dataOffset + meta.DataOffsets[0]
	var readErr error
	t.MutableBytes(func(data []byte) {
		n, err := mr.reader.ReadAt(data, tensorOffset)
		if n < len(data) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			readErr = errors.Wrapf(err, "failed to read tensor %s", tensorName)
		}
	})
	if readErr != nil {
		return nil, readErr
	}
	return t, nil
}

// Float64Values returns the values of a F64 tensor, in row-major order.
func Float64Values(t *tensors.Tensor) ([]float64, error) {
	if dtype := t.Shape().DType; dtype != dtypes.Float64 {
		return nil, errors.Errorf("tensor has dtype %s, wanted %s", dtype, dtypes.Float64)
	}
	values := make([]float64, t.Shape().Size())
	t.MutableBytes(func(data []byte) {
		for i := range values {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
	})
	return values, nil
}

// IterTensors returns an iterator over all tensors as GoMLX tensors, in file order.
func (mr *Reader) IterTensors() func(yield func(TensorAndName, error) bool) {
	return func(yield func(TensorAndName, error) bool) {
		for _, tensorName := range sortTensorsByOffset(mr.Header) {
			tensor, err := mr.ReadTensor(tensorName)
			if err != nil {
				yield(TensorAndName{}, err)
				return
			}
			if !yield(TensorAndName{Name: tensorName, Tensor: tensor}, nil) {
				return
			}
		}
	}
}

// sortTensorsByOffset returns the tensor names sorted by their file offset, for sequential reading.
func sortTensorsByOffset(header *Header) []string {
	names := header.Names()
	slices.SortStableFunc(names, func(a, b string) int {
		offsetA, offsetB := header.Tensors[a].DataOffsets[0], header.Tensors[b].DataOffsets[0]
		switch {
		case offsetA < offsetB:
			return -1
		case offsetA > offsetB:
			return 1
		}
		return 0
	})
	return names
}
