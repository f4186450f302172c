package serialization

import (
	"time"

	"github.com/born-ml/resnet/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "BORN"
	FormatVersion   = 2    // v2: fixed header with SHA-256 checksum
	HeaderAlignment = 64   // Align tensor data to 64 bytes
	FixedHeaderSize = 64   // fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
)

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeInt32   = "int32"
)

// Flags for the fixed header.
const (
	FlagHasMetadata   uint32 = 1 << 2 // bit 2: custom metadata included
	FlagHasCheckpoint uint32 = 1 << 3 // bit 3: training checkpoint meta included
)

// Header represents the JSON header in a parameter file.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	ModelType      string            `json:"model_type"` // e.g. "ResNet18"
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata"`
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta records the training state at which a snapshot was taken.
type CheckpointMeta struct {
	Epoch     int     `json:"epoch"`
	ValidLoss float64 `json:"valid_loss"`
	Optimizer string  `json:"optimizer,omitempty"`
	LR        float64 `json:"lr,omitempty"`
}

// TensorMeta describes a tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`   // e.g. "layer1.0.conv1.weight"
	DType  string `json:"dtype"`  // "float32" or "int32"
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from start of tensor data
	Size   int64  `json:"size"`   // bytes
}

// dtypeToString converts tensor.DataType to string representation.
func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Int32:
		return DTypeInt32
	default:
		return "unknown"
	}
}

// stringToDtype converts string representation to tensor.DataType.
func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeInt32:
		return tensor.Int32, true
	default:
		return 0, false
	}
}
