package backend

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// ReLU computes max(0, x) element-wise.
func (b *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("relu", x)
	out := tensor.Zeros(x.Shape())
	src := x.AsFloat32()
	dst := out.AsFloat32()
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		}
	}
	return out
}

// ReLUBackward passes grad through where the forward input was positive.
func (b *Backend) ReLUBackward(grad, input *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("relu_backward", grad, input)
	requireSameShape("relu_backward", grad, input)
	out := tensor.Zeros(grad.Shape())
	g := grad.AsFloat32()
	x := input.AsFloat32()
	dst := out.AsFloat32()
	for i, v := range x {
		if v > 0 {
			dst[i] = g[i]
		}
	}
	return out
}

// Add returns a + b for tensors of identical shape.
func (b *Backend) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("add", x, y)
	requireSameShape("add", x, y)
	out := tensor.Zeros(x.Shape())
	xs := x.AsFloat32()
	ys := y.AsFloat32()
	dst := out.AsFloat32()
	for i := range dst {
		dst[i] = xs[i] + ys[i]
	}
	return out
}

// AddInPlace accumulates src into dst. Used for gradient accumulation.
func (b *Backend) AddInPlace(dst, src *tensor.RawTensor) {
	requireFloat32("add_inplace", dst, src)
	requireSameShape("add_inplace", dst, src)
	d := dst.AsFloat32()
	for i, v := range src.AsFloat32() {
		d[i] += v
	}
}
