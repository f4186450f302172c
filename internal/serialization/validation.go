package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Limits on what a checkpoint header may declare. A ResNet-18 state dict has a few hundred
// tensors and about 45 MB of data, so anything far beyond these is a corrupt file.
const (
	MaxHeaderSize    = 16 << 20
	MaxTensorCount   = 10_000
	MaxTensorNameLen = 256
	MaxDataSize      = 1 << 30
)

// ValidateTensorName rejects names that are not dotted parameter paths.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &HeaderError{Check: "name", Detail: "empty tensor name"}
	case len(name) > MaxTensorNameLen:
		return &HeaderError{Check: "name", Tensor: name[:32] + "...", Detail: fmt.Sprintf("name longer than %d bytes", MaxTensorNameLen)}
	case strings.ContainsAny(name, "/\\\x00"), strings.Contains(name, ".."):
		return &HeaderError{Check: "name", Tensor: name, Detail: "name must be a dotted parameter path"}
	}
	return nil
}

// validateHeader checks the decoded tensor table against the data section. After it
// returns nil every entry has a unique name, a known dtype, a positive shape whose byte
// count equals Size, and a byte range inside the data section that no other entry shares.
func validateHeader(h *Header, dataSize int64) error {
	if h.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: header says %d", ErrUnsupportedVersion, h.FormatVersion)
	}
	if len(h.Tensors) > MaxTensorCount {
		return &HeaderError{Check: "count", Detail: fmt.Sprintf("%d tensors, limit %d", len(h.Tensors), MaxTensorCount)}
	}

	seen := make(map[string]struct{}, len(h.Tensors))
	for i := range h.Tensors {
		meta := &h.Tensors[i]
		if err := ValidateTensorName(meta.Name); err != nil {
			return err
		}
		if _, dup := seen[meta.Name]; dup {
			return &HeaderError{Check: "duplicate", Tensor: meta.Name, Detail: "name appears more than once"}
		}
		seen[meta.Name] = struct{}{}

		if err := checkEntrySize(meta); err != nil {
			return err
		}
	}
	return checkRanges(h.Tensors, dataSize)
}

// checkEntrySize verifies dtype and shape, and that Size is exactly the bytes they describe.
func checkEntrySize(meta *TensorMeta) error {
	dtype, ok := stringToDtype(meta.DType)
	if !ok {
		return &HeaderError{Check: "dtype", Tensor: meta.Name, Detail: fmt.Sprintf("unsupported dtype %q", meta.DType)}
	}
	want := int64(dtype.Size())
	for _, dim := range meta.Shape {
		if dim <= 0 {
			return &HeaderError{Check: "shape", Tensor: meta.Name, Detail: fmt.Sprintf("non-positive dimension in %v", meta.Shape)}
		}
		want *= int64(dim)
		if want > MaxDataSize {
			return &HeaderError{Check: "shape", Tensor: meta.Name, Detail: fmt.Sprintf("shape %v exceeds the data limit", meta.Shape)}
		}
	}
	if meta.Size != want {
		return &HeaderError{
			Check:  "size",
			Tensor: meta.Name,
			Detail: fmt.Sprintf("%s%v needs %d bytes, table says %d", meta.DType, meta.Shape, want, meta.Size),
		}
	}
	return nil
}

// checkRanges sorts a copy of tensors by offset and rejects ranges that fall outside
// [0, dataSize) or overlap their neighbour.
func checkRanges(tensors []TensorMeta, dataSize int64) error {
	byOffset := make([]TensorMeta, len(tensors))
	copy(byOffset, tensors)
	sort.Slice(byOffset, func(i, j int) bool { return byOffset[i].Offset < byOffset[j].Offset })

	var end int64
	for i, meta := range byOffset {
		if meta.Offset < 0 || meta.Size < 0 {
			return &HeaderError{Check: "range", Tensor: meta.Name, Detail: fmt.Sprintf("offset %d size %d", meta.Offset, meta.Size)}
		}
		if meta.Offset > dataSize || meta.Size > dataSize-meta.Offset {
			return &HeaderError{
				Check:  "range",
				Tensor: meta.Name,
				Detail: fmt.Sprintf("bytes [%d, %d) past data section of %d", meta.Offset, meta.Offset+meta.Size, dataSize),
			}
		}
		if i > 0 && meta.Offset < end {
			return &HeaderError{
				Check:  "overlap",
				Tensor: byOffset[i-1].Name,
				Other:  meta.Name,
				Detail: fmt.Sprintf("previous ends at %d, next starts at %d", end, meta.Offset),
			}
		}
		end = meta.Offset + meta.Size
	}
	return nil
}
