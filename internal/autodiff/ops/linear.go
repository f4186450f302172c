package ops

import (
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/tensor"
)

// LinearOp records output = x @ weight^T + bias.
type LinearOp struct {
	input  *tensor.RawTensor
	weight *tensor.RawTensor
	bias   *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLinearOp creates a new LinearOp.
func NewLinearOp(input, weight, bias, output *tensor.RawTensor) *LinearOp {
	return &LinearOp{input: input, weight: weight, bias: bias, output: output}
}

// Inputs returns [x, weight, bias].
func (op *LinearOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.weight, op.bias}
}

// Output returns the output tensor.
func (op *LinearOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for x, weight and bias.
func (op *LinearOp) Backward(outputGrad *tensor.RawTensor, b *backend.Backend) []*tensor.RawTensor {
	dx, dw, db := b.LinearBackward(outputGrad, op.input, op.weight)
	return []*tensor.RawTensor{dx, dw, db}
}
