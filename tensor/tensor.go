// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the dense NCHW tensors that models consume and produce.
//
// Example:
//
//	images := tensor.Zeros(tensor.Shape{8, 3, 32, 32})
//	pred := nn.Predict(model, b, images)
package tensor

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// RawTensor is a contiguous little-endian buffer with a shape and element type.
type RawTensor = tensor.RawTensor

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 32, 32} is a batch of two 3-channel 32x32 images.
type Shape = tensor.Shape

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
)

// ErrLengthMismatch is returned when a slice does not fill its shape exactly.
var ErrLengthMismatch = tensor.ErrLengthMismatch

// Zeros returns a zero float32 tensor. It panics if a dimension is not positive.
func Zeros(shape Shape) *RawTensor {
	return tensor.Zeros(shape)
}

// FromFloat32 copies data into a new float32 tensor of the given shape.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape)
}

// FromInt32 copies data into a new int32 tensor of the given shape.
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	return tensor.FromInt32(data, shape)
}
