package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/resnet/internal/tensor"
)

// Reader holds a parsed, checksum-verified parameter file in memory.
type Reader struct {
	header   Header
	flags    uint32
	data     []byte
	checksum [32]byte
}

// ReadFile opens and parses the checkpoint at path.
func ReadFile(path string) (*Reader, error) {
	//nolint:gosec // G304: File path comes from configuration, which is expected for model loading
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return NewReader(f)
}

// NewReader parses a checkpoint from r. The data section must match the stored
// SHA-256 and the tensor table must pass validateHeader before a Reader is returned.
func NewReader(r io.Reader) (*Reader, error) {
	fixedHeader := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixedHeader); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixedHeader[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixedHeader[4:8]); version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	reader := &Reader{flags: binary.LittleEndian.Uint32(fixedHeader[8:12])}
	headerSize := binary.LittleEndian.Uint64(fixedHeader[16:24])
	dataSize := binary.LittleEndian.Uint64(fixedHeader[24:32])
	copy(reader.checksum[:], fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	if dataSize > MaxDataSize {
		return nil, &HeaderError{Check: "data", Detail: fmt.Sprintf("%d bytes of tensor data, limit %d", dataSize, MaxDataSize)}
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &reader.header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize bounded by MaxHeaderSize
	if padding := alignmentPadding(int64(FixedHeaderSize) + int64(headerSize)); padding > 0 {
		if _, err := io.ReadFull(r, make([]byte, padding)); err != nil {
			return nil, fmt.Errorf("failed to read padding: %w", err)
		}
	}

	reader.data = make([]byte, dataSize)
	if _, err := io.ReadFull(r, reader.data); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	if err := ValidateChecksum(ComputeChecksum(reader.data), reader.checksum); err != nil {
		return nil, err
	}

	//nolint:gosec // G115: dataSize bounded by MaxDataSize
	if err := validateHeader(&reader.header, int64(dataSize)); err != nil {
		return nil, fmt.Errorf("invalid tensor table: %w", err)
	}

	return reader, nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Flags returns the fixed-header flag bits.
func (r *Reader) Flags() uint32 {
	return r.flags
}

// TensorNames returns a list of all tensor names in the file, in file order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *Reader) TensorInfo(name string) (*TensorMeta, error) {
	for i := range r.header.Tensors {
		if r.header.Tensors[i].Name == name {
			return &r.header.Tensors[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
}

// LoadTensor copies a single tensor out of the file.
func (r *Reader) LoadTensor(name string) (*tensor.RawTensor, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	// NewReader already checked dtype, shape, size and range for every entry.
	dtype, _ := stringToDtype(meta.DType)
	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	copy(raw.Data(), r.data[meta.Offset:meta.Offset+meta.Size])
	return raw, nil
}

// ReadStateDict reads all tensors into a state dictionary.
func (r *Reader) ReadStateDict() (map[string]*tensor.RawTensor, error) {
	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.LoadTensor(meta.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, nil
}
