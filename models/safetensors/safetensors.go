// Package safetensors reads and writes weights in the safetensors format:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
//
// The JSON header maps each tensor name to its dtype, shape and data offsets, plus an optional
// "__metadata__" map of strings.
//
// Example:
//
//	reader, err := safetensors.Open("model.safetensors")
//	if err != nil {
//		panic(err)
//	}
//	defer reader.Close()
//	for tensorAndName, err := range reader.IterTensors() {
//		if err != nil {
//			panic(err)
//		}
//		fmt.Printf("- Tensor %s: shape=%s\n", tensorAndName.Name, tensorAndName.Tensor.Shape())
//	}
//
// Headers are validated before any tensor is allocated: dimensions must be non-negative, the
// data offsets must span exactly the bytes of the shape, and (when the size of the contents is
// known) the data must lie within them.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// MetadataKey is the reserved header entry holding the file metadata.
const MetadataKey = "__metadata__"

// maxHeaderSize is a sanity check on the header size read from files.
const maxHeaderSize = 100 * 1024 * 1024

// Header represents the JSON header of a safetensors file.
type Header struct {
	Tensors  map[string]*TensorMetadata // Tensor name -> metadata
	Metadata map[string]string          // Optional __metadata__ field
}

// parseHeader reads and parses the header at the start of r, whose total size is size, or -1
// if unknown. It returns the header and the offset where the tensor data starts.
func parseHeader(r io.ReaderAt, size int64) (*Header, int64, error) {
	// Read header size (8 bytes, little-endian)
	var headerSize uint64
	if err := binary.Read(io.NewSectionReader(r, 0, 8), binary.LittleEndian, &headerSize); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > maxHeaderSize {
		return nil, 0, errors.Errorf("header size too large: %d bytes", headerSize)
	}

	// Read JSON header
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(r, 8, int64(headerSize)), headerBytes); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header JSON")
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse header JSON")
	}

	header := &Header{
		Tensors:  make(map[string]*TensorMetadata),
		Metadata: make(map[string]string),
	}
	for key, value := range rawHeader {
		if key == MetadataKey {
			if err := json.Unmarshal(value, &header.Metadata); err != nil {
				return nil, 0, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		var tm TensorMetadata
		if err := json.Unmarshal(value, &tm); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to parse tensor metadata for %s", key)
		}
		tm.Name = key
		header.Tensors[key] = &tm
	}

	// Data offset is after the 8-byte size + header
	dataOffset := int64(8 + headerSize)
	for _, tm := range header.Tensors {
		if err := tm.validate(dataOffset, size); err != nil {
			return nil, 0, err
		}
	}
	return header, dataOffset, nil
}

// validate checks the shape and data offsets of the tensor, for a file of the given size (-1 if
// unknown) whose tensor data starts at dataOffset.
func (tm *TensorMetadata) validate(dataOffset, size int64) error {
	dtype, err := dtypeToGoMLX(tm.Dtype)
	if err != nil {
		return errors.WithMessagef(err, "tensor %s", tm.Name)
	}
	begin, end := tm.DataOffsets[0], tm.DataOffsets[1]
	if begin < 0 || end < begin {
		return errors.Errorf("tensor %s has invalid data offsets %v", tm.Name, tm.DataOffsets)
	}
	numBytes, err := tm.byteSize(int64(dtype.Size()))
	if err != nil {
		return err
	}
	if end-begin != numBytes {
		return errors.Errorf("tensor %s with shape %v expected %d bytes, but its data offsets %v span %d bytes",
			tm.Name, tm.Shape, numBytes, tm.DataOffsets, end-begin)
	}
	if size >= 0 && end > size-dataOffset {
		return errors.Errorf("tensor %s data offsets %v go beyond the end of the file (%d bytes of data)",
			tm.Name, tm.DataOffsets, size-dataOffset)
	}
	return nil
}

// byteSize returns the number of bytes of the tensor, failing on negative dimensions or overflow.
func (tm *TensorMetadata) byteSize(elementSize int64) (int64, error) {
	for _, dim := range tm.Shape {
		if dim < 0 {
			return 0, errors.Errorf("tensor %s has negative dimension in shape %v", tm.Name, tm.Shape)
		}
	}
	numBytes := elementSize
	for _, dim := range tm.Shape {
		if dim == 0 {
			return 0, nil
		}
		if numBytes > math.MaxInt64/int64(dim) {
			return 0, errors.Errorf("tensor %s shape %v is too large", tm.Name, tm.Shape)
		}
		numBytes *= int64(dim)
	}
	return numBytes, nil
}

func dtypeToGoMLX(stDtype string) (dtypes.DType, error) {
	dtype, found := dtypes.MapOfNames[strings.ToLower(stDtype)]
	if !found {
		return dtypes.InvalidDType, errors.Errorf("dtype %q not supported", stDtype)
	}
	return dtype, nil
}
