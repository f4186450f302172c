package ops

import (
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/tensor"
)

// AvgPoolOp records a non-overlapping average pool.
type AvgPoolOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	kernel int
}

// NewAvgPoolOp creates a new AvgPoolOp.
func NewAvgPoolOp(input, output *tensor.RawTensor, kernel int) *AvgPoolOp {
	return &AvgPoolOp{input: input, output: output, kernel: kernel}
}

// Inputs returns the input tensor.
func (op *AvgPoolOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the pooled tensor.
func (op *AvgPoolOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward spreads the gradient evenly over each pooling window.
func (op *AvgPoolOp) Backward(outputGrad *tensor.RawTensor, b *backend.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{b.AvgPool2DBackward(outputGrad, op.input.Shape(), op.kernel)}
}
