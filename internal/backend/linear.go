package backend

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// Linear computes x @ weight^T + bias for x [N, in], weight [out, in], bias [out].
func (b *Backend) Linear(x, weight, bias *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("linear", x, weight, bias)
	n, in, out := linearDims("linear", x, weight)
	if bias.NumElements() != out {
		panic(fmt.Sprintf("linear: bias has %d elements, expected %d", bias.NumElements(), out))
	}

	result := tensor.Zeros(tensor.Shape{n, out})
	dst := result.AsFloat32()
	bs := bias.AsFloat32()
	for i := 0; i < n; i++ {
		copy(dst[i*out:(i+1)*out], bs)
	}
	b.gemm(false, true, n, out, in, x.AsFloat32(), weight.AsFloat32(), 1, dst)
	return result
}

// LinearBackward returns the gradients with respect to x, weight and bias:
//
//	dx = grad @ weight,  dweight = grad^T @ x,  dbias = sum_rows(grad)
func (b *Backend) LinearBackward(grad, x, weight *tensor.RawTensor) (dx, dweight, dbias *tensor.RawTensor) {
	requireFloat32("linear_backward", grad, x, weight)
	n, in, out := linearDims("linear_backward", x, weight)
	if want := (tensor.Shape{n, out}); !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("linear_backward: gradient shape %v, expected %v", grad.Shape(), want))
	}

	g := grad.AsFloat32()
	dx = tensor.Zeros(x.Shape())
	b.gemm(false, false, n, in, out, g, weight.AsFloat32(), 0, dx.AsFloat32())

	dweight = tensor.Zeros(weight.Shape())
	b.gemm(true, false, out, in, n, g, x.AsFloat32(), 0, dweight.AsFloat32())

	dbias = tensor.Zeros(tensor.Shape{out})
	db := dbias.AsFloat32()
	for i := 0; i < n; i++ {
		for j, v := range g[i*out : (i+1)*out] {
			db[j] += v
		}
	}
	return dx, dweight, dbias
}

func linearDims(op string, x, weight *tensor.RawTensor) (n, in, out int) {
	xs, ws := x.Shape(), weight.Shape()
	if len(xs) != 2 || len(ws) != 2 {
		panic(fmt.Sprintf("%s: expected 2D input and weight, got %v and %v", op, xs, ws))
	}
	if xs[1] != ws[1] {
		panic(fmt.Sprintf("%s: input features %d != weight features %d", op, xs[1], ws[1]))
	}
	return xs[0], xs[1], ws[0]
}
