package nn

import (
	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/tensor"
	"golang.org/x/exp/rand"
)

// Conv2D is a bias-free 2D convolution; every convolution in the network feeds a batch norm.
type Conv2D struct {
	weight  *Parameter // [out, in, k, k]
	stride  int
	padding int
	backend *autodiff.Backend
}

// NewConv2D creates a square-kernel convolution with Kaiming-normal weights.
func NewConv2D(name string, in, out, kernel, stride, padding int, b *autodiff.Backend, src rand.Source) *Conv2D {
	w := tensor.Zeros(tensor.Shape{out, in, kernel, kernel})
	KaimingNormal(w, in*kernel*kernel, src)
	return &Conv2D{
		weight:  NewParameter(name+".weight", w),
		stride:  stride,
		padding: padding,
		backend: b,
	}
}

// Forward applies the convolution.
func (c *Conv2D) Forward(x *tensor.RawTensor, _ Mode) *tensor.RawTensor {
	return c.backend.Conv2D(x, c.weight.Tensor(), c.stride, c.padding)
}

// Weight returns the kernel parameter.
func (c *Conv2D) Weight() *Parameter {
	return c.weight
}

// Stride returns the convolution stride.
func (c *Conv2D) Stride() int {
	return c.stride
}

// Parameters returns [weight].
func (c *Conv2D) Parameters() []*Parameter {
	return []*Parameter{c.weight}
}

// Buffers returns nil; convolutions are stateless.
func (c *Conv2D) Buffers() []*Buffer {
	return nil
}
