// Package autodiff implements automatic differentiation using the decorator pattern.
//
// Backend wraps a backend.Backend and records every differentiable kernel call on a
// GradientTape while recording is on. With recording off (validation, evaluation)
// the calls go straight to the wrapped kernels and nothing is retained.
//
// Usage:
//
//	ad := autodiff.New(backend.NewCPU())
//	ad.Tape().StartRecording()
//	logits := model.Forward(x, nn.Train)
//	loss, _ := ad.CrossEntropy(logits, labels)
//	grads := ad.Backward(loss)
package autodiff

import (
	"fmt"

	"github.com/born-ml/resnet/internal/autodiff/ops"
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/tensor"
)

// Backend wraps a backend.Backend and adds automatic differentiation.
type Backend struct {
	inner *backend.Backend
	tape  *GradientTape
}

// New creates a new Backend wrapping the given kernels.
func New(inner *backend.Backend) *Backend {
	return &Backend{
		inner: inner,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *Backend) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *Backend) Inner() *backend.Backend {
	return b.inner
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Backward seeds the gradient of a scalar loss with one and walks the tape.
func (b *Backend) Backward(loss *tensor.RawTensor) map[*tensor.RawTensor]*tensor.RawTensor {
	seed := tensor.Zeros(loss.Shape())
	seed.Fill(1)
	return b.tape.Backward(seed, b.inner)
}

// Conv2D performs a convolution and records the operation.
func (b *Backend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	out := b.inner.Conv2D(input, kernel, stride, padding)
	b.tape.Record(ops.NewConv2DOp(input, kernel, out, stride, padding))
	return out
}

// BatchNorm2DTrain normalizes with batch statistics and records the operation.
// The statistics are returned so the caller can update running buffers.
func (b *Backend) BatchNorm2DTrain(x, gamma, beta *tensor.RawTensor, eps float32) (*tensor.RawTensor, *backend.BatchStats) {
	out, stats := b.inner.BatchNorm2DTrain(x, gamma, beta, eps)
	b.tape.Record(ops.NewBatchNormOp(x, gamma, beta, out, stats))
	return out, stats
}

// BatchNorm2DEval normalizes with running statistics. Never recorded.
func (b *Backend) BatchNorm2DEval(x, gamma, beta, runningMean, runningVar *tensor.RawTensor, eps float32) *tensor.RawTensor {
	return b.inner.BatchNorm2DEval(x, gamma, beta, runningMean, runningVar, eps)
}

// ReLU applies the activation and records the operation.
func (b *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, out))
	return out
}

// Add sums two tensors and records the operation.
func (b *Backend) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Add(x, y)
	b.tape.Record(ops.NewAddOp(x, y, out))
	return out
}

// AvgPool2D pools and records the operation.
func (b *Backend) AvgPool2D(x *tensor.RawTensor, kernel int) *tensor.RawTensor {
	out := b.inner.AvgPool2D(x, kernel)
	b.tape.Record(ops.NewAvgPoolOp(x, out, kernel))
	return out
}

// Reshape returns a view with a new shape and records the operation.
func (b *Backend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out, err := x.Reshape(shape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	b.tape.Record(ops.NewReshapeOp(x, out))
	return out
}

// Linear applies x @ weight^T + bias and records the operation.
func (b *Backend) Linear(x, weight, bias *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Linear(x, weight, bias)
	b.tape.Record(ops.NewLinearOp(x, weight, bias, out))
	return out
}

// CrossEntropy computes the mean loss and records the operation.
func (b *Backend) CrossEntropy(logits, labels *tensor.RawTensor) (*tensor.RawTensor, error) {
	loss, err := b.inner.CrossEntropy(logits, labels)
	if err != nil {
		return nil, err
	}
	b.tape.Record(ops.NewCrossEntropyOp(logits, labels, loss))
	return loss, nil
}

// ArgMax returns the predicted class per row. Not differentiable.
func (b *Backend) ArgMax(logits *tensor.RawTensor) []int {
	return b.inner.ArgMax(logits)
}
