package nn

import (
	"math"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/tensor"
	"golang.org/x/exp/rand"
)

// Linear implements a fully connected layer: y = x @ W^T + b.
//
// Weights and bias are drawn from U(-1/sqrt(in), 1/sqrt(in)).
type Linear struct {
	weight  *Parameter // [out, in]
	bias    *Parameter // [out]
	backend *autodiff.Backend
}

// NewLinear creates a new linear layer.
func NewLinear(name string, in, out int, b *autodiff.Backend, src rand.Source) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	w := tensor.Zeros(tensor.Shape{out, in})
	Uniform(w, bound, src)
	bias := tensor.Zeros(tensor.Shape{out})
	Uniform(bias, bound, src)

	return &Linear{
		weight:  NewParameter(name+".weight", w),
		bias:    NewParameter(name+".bias", bias),
		backend: b,
	}
}

// Forward computes x @ W^T + b for x [N, in].
func (l *Linear) Forward(x *tensor.RawTensor, _ Mode) *tensor.RawTensor {
	return l.backend.Linear(x, l.weight.Tensor(), l.bias.Tensor())
}

// InFeatures returns the input width.
func (l *Linear) InFeatures() int {
	return l.weight.Tensor().Shape()[1]
}

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int {
	return l.weight.Tensor().Shape()[0]
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Buffers returns nil.
func (l *Linear) Buffers() []*Buffer {
	return nil
}
