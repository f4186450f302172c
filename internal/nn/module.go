// Package nn implements the network modules for CIFAR-style image classification.
//
// This package provides building blocks for constructing residual networks:
//   - Module interface: Forward with an explicit Train/Eval mode, Parameters
//   - Parameter, Buffer: trainable and non-trainable named tensors
//   - Conv2D, BatchNorm2D, Linear layers
//   - ResidualBlock and ResNet (ResNet-18 by default)
//   - State dictionaries and checkpoint files
//
// Modules run their kernels through an autodiff.Backend, so a forward pass with the
// tape recording can be differentiated afterwards.
package nn

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// Mode selects training or inference behavior of stateful layers.
type Mode int

const (
	// Train uses batch statistics in batch norm and updates the running estimates.
	Train Mode = iota
	// Eval uses the running statistics and leaves all state untouched.
	Eval
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Train {
		return "train"
	}
	return "eval"
}

// Module is the base interface for all neural network components.
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.RawTensor, mode Mode) *tensor.RawTensor

	// Parameters returns all trainable parameters of this module,
	// including those of nested modules.
	Parameters() []*Parameter

	// Buffers returns all non-trainable state of this module.
	Buffers() []*Buffer
}
