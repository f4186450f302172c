package ops

import (
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/tensor"
)

// AddOp represents an element-wise addition operation: output = a + b.
//
// Backward pass:
//   - d(a+b)/da = 1, so grad_a = outputGrad
//   - d(a+b)/db = 1, so grad_b = outputGrad
type AddOp struct {
	inputs []*tensor.RawTensor // [a, b]
	output *tensor.RawTensor   // a + b
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{
		inputs: []*tensor.RawTensor{a, b},
		output: output,
	}
}

// Backward passes the output gradient to both inputs unchanged.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, _ *backend.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad, outputGrad}
}

// Inputs returns the input tensors [a, b].
func (op *AddOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor a + b.
func (op *AddOp) Output() *tensor.RawTensor {
	return op.output
}
