package tensor

import (
	"errors"
	"fmt"
	"unsafe"
)

// Device tags where a tensor's storage is owned. Kernels always read host memory;
// an accelerator copies in and out around its own calls.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// ErrLengthMismatch is returned when a slice does not fill the requested shape.
var ErrLengthMismatch = errors.New("data length does not match shape")

// RawTensor is a contiguous row-major tensor backed by a byte buffer.
type RawTensor struct {
	data   []byte
	shape  Shape
	dtype  DataType
	device Device
}

// NewRaw creates a new zero-filled RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Zeros is NewRaw for float32 tensors that panics on an invalid shape.
// Kernels use it for outputs whose shapes were already checked.
func Zeros(shape Shape) *RawTensor {
	t, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		panic(err)
	}
	return t
}

// FromFloat32 copies data into a new float32 tensor.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	t, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	if len(data) != t.NumElements() {
		return nil, fmt.Errorf("%w: got %d values for shape %v", ErrLengthMismatch, len(data), shape)
	}
	copy(t.AsFloat32(), data)
	return t, nil
}

// FromInt32 copies data into a new int32 tensor.
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	t, err := NewRaw(shape, Int32, CPU)
	if err != nil {
		return nil, err
	}
	if len(data) != t.NumElements() {
		return nil, fmt.Errorf("%w: got %d values for shape %v", ErrLengthMismatch, len(data), shape)
	}
	copy(t.AsInt32(), data)
	return t, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data)
}

// Data returns the raw little-endian byte slice.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds fixed by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds fixed by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Clone returns a deep copy.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &RawTensor{data: data, shape: r.shape.Clone(), dtype: r.dtype, device: r.device}
}

// Reshape returns a view with a new shape sharing the same storage.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("reshape %v -> %v: element count %d != %d",
			r.shape, shape, r.NumElements(), shape.NumElements())
	}
	return &RawTensor{data: r.data, shape: shape.Clone(), dtype: r.dtype, device: r.device}, nil
}

// Fill sets every float32 element to v.
func (r *RawTensor) Fill(v float32) {
	data := r.AsFloat32()
	for i := range data {
		data[i] = v
	}
}

// String describes the tensor without printing its data.
func (r *RawTensor) String() string {
	return fmt.Sprintf("Tensor(%s, %v, %s)", r.dtype, []int(r.shape), r.device)
}
