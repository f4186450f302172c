package ops

import (
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/tensor"
)

// BatchNormOp records a training-mode batch normalization.
// Inputs are [x, gamma, beta]; the batch statistics are kept for the backward pass.
type BatchNormOp struct {
	input  *tensor.RawTensor
	gamma  *tensor.RawTensor
	beta   *tensor.RawTensor
	output *tensor.RawTensor
	stats  *backend.BatchStats
}

// NewBatchNormOp creates a new BatchNormOp.
func NewBatchNormOp(input, gamma, beta, output *tensor.RawTensor, stats *backend.BatchStats) *BatchNormOp {
	return &BatchNormOp{input: input, gamma: gamma, beta: beta, output: output, stats: stats}
}

// Inputs returns [x, gamma, beta].
func (op *BatchNormOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.gamma, op.beta}
}

// Output returns the normalized tensor.
func (op *BatchNormOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for x, gamma and beta.
func (op *BatchNormOp) Backward(outputGrad *tensor.RawTensor, b *backend.Backend) []*tensor.RawTensor {
	dx, dgamma, dbeta := b.BatchNorm2DBackward(outputGrad, op.input, op.gamma, op.stats)
	return []*tensor.RawTensor{dx, dgamma, dbeta}
}
