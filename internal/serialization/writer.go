package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/born-ml/resnet/internal/tensor"
)

// Writer writes a state dictionary to an io.Writer.
type Writer struct {
	w io.Writer
}

// NewWriter creates a writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteStateDict writes stateDict with the given header. Tensors, creation time and
// format version in header are filled in by the writer.
func (w *Writer) WriteStateDict(stateDict map[string]*tensor.RawTensor, header Header) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header.FormatVersion = FormatVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	// Calculate tensor offsets and collect tensor data
	header.Tensors = make([]TensorMeta, 0, len(names))
	var data []byte
	for _, name := range names {
		raw := stateDict[name]
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  []int(raw.Shape()),
			Offset: int64(len(data)),
			Size:   int64(raw.ByteSize()),
		})
		data = append(data, raw.Data()...)
	}

	checksum := ComputeChecksum(data)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	fixedHeader := make([]byte, FixedHeaderSize)
	copy(fixedHeader[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersion))

	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil {
		flags |= FlagHasCheckpoint
	}
	binary.LittleEndian.PutUint32(fixedHeader[8:12], flags)
	binary.LittleEndian.PutUint64(fixedHeader[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixedHeader[24:32], uint64(len(data)))
	copy(fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.w.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if padding := alignmentPadding(int64(FixedHeaderSize + len(headerJSON))); padding > 0 {
		if _, err := w.w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// WriteFile writes stateDict to path. The file is written next to its destination
// and renamed into place, so an interrupted save never leaves a truncated file.
func WriteFile(path string, stateDict map[string]*tensor.RawTensor, header Header) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // no-op after a successful rename
	}()

	if err := NewWriter(tmp).WriteStateDict(stateDict, header); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

func alignmentPadding(pos int64) int64 {
	return (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment
}
