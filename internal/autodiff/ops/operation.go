// Package ops defines the differentiable operations recorded on the gradient tape.
//
// Each operation keeps the tensors its backward pass needs and delegates the
// arithmetic to the backend:
//   - Conv2DOp: convolution (input and kernel gradients)
//   - BatchNormOp: training-mode batch normalization
//   - ReLUOp, AddOp: activation and residual sum
//   - AvgPoolOp, ReshapeOp: pooling and flattening
//   - LinearOp: classifier head
//   - CrossEntropyOp: loss over class logits
package ops

import (
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/tensor"
)

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	Backward(outputGrad *tensor.RawTensor, b *backend.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
