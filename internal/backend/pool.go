package backend

import (
	"fmt"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// AvgPool2D averages non-overlapping kernel×kernel windows (stride = kernel).
// Trailing rows and columns that do not fill a window are dropped.
func (b *Backend) AvgPool2D(x *tensor.RawTensor, kernel int) *tensor.RawTensor {
	requireFloat32("avgpool2d", x)
	n, c, h, w := x.Shape().NCHW()
	hOut, wOut := poolOutput("avgpool2d", h, w, kernel)

	out := tensor.Zeros(tensor.Shape{n, c, hOut, wOut})
	src := x.AsFloat32()
	dst := out.AsFloat32()
	inv := 1 / float32(kernel*kernel)

	parallel.ForBatch(n, c, func(s, ch int) {
		in := src[(s*c+ch)*h*w:]
		o := dst[(s*c+ch)*hOut*wOut:]
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				var sum float32
				for kh := 0; kh < kernel; kh++ {
					row := (oh*kernel + kh) * w
					for kw := 0; kw < kernel; kw++ {
						sum += in[row+ow*kernel+kw]
					}
				}
				o[oh*wOut+ow] = sum * inv
			}
		}
	}, b.par)

	return out
}

// AvgPool2DBackward spreads each output gradient evenly over its window.
func (b *Backend) AvgPool2DBackward(grad *tensor.RawTensor, inputShape tensor.Shape, kernel int) *tensor.RawTensor {
	requireFloat32("avgpool2d_backward", grad)
	n, c, h, w := inputShape.NCHW()
	hOut, wOut := poolOutput("avgpool2d_backward", h, w, kernel)
	if want := (tensor.Shape{n, c, hOut, wOut}); !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("avgpool2d_backward: gradient shape %v, expected %v", grad.Shape(), want))
	}

	out := tensor.Zeros(inputShape)
	src := grad.AsFloat32()
	dst := out.AsFloat32()
	inv := 1 / float32(kernel*kernel)

	parallel.ForBatch(n, c, func(s, ch int) {
		g := src[(s*c+ch)*hOut*wOut:]
		in := dst[(s*c+ch)*h*w:]
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				v := g[oh*wOut+ow] * inv
				for kh := 0; kh < kernel; kh++ {
					row := (oh*kernel + kh) * w
					for kw := 0; kw < kernel; kw++ {
						in[row+ow*kernel+kw] = v
					}
				}
			}
		}
	}, b.par)

	return out
}

func poolOutput(op string, h, w, kernel int) (int, int) {
	if kernel <= 0 || kernel > h || kernel > w {
		panic(fmt.Sprintf("%s: kernel %d does not fit input %dx%d", op, kernel, h, w))
	}
	return h / kernel, w / kernel
}
