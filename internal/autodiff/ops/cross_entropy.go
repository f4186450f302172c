package ops

import (
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/tensor"
)

// CrossEntropyOp represents the cross-entropy loss operation.
//
// Forward:
//
//	Loss = mean(-log_softmax(logits)[targets])
//
// Backward:
//
//	∂L/∂logits = (softmax(logits) - y_one_hot) / batch_size
//
// Targets are class indices and receive no gradient.
type CrossEntropyOp struct {
	logits  *tensor.RawTensor // [batch_size, num_classes]
	targets *tensor.RawTensor // [batch_size], int32
	output  *tensor.RawTensor // scalar loss
}

// NewCrossEntropyOp creates a new cross-entropy operation.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{
		logits:  logits,
		targets: targets,
		output:  output,
	}
}

// Inputs returns the input tensors.
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits}
}

// Output returns the output tensor.
func (op *CrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the gradient with respect to logits.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, b *backend.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{b.CrossEntropyBackward(outputGrad, op.logits, op.targets)}
}
