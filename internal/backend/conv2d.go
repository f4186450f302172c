package backend

import (
	"fmt"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// convGeom holds the dimensions of one convolution.
type convGeom struct {
	N, CIn, H, W     int
	COut, KH, KW     int
	HOut, WOut       int
	stride, padding  int
	colRows, colCols int // im2col matrix for one sample: [CIn*KH*KW, HOut*WOut]
}

func newConvGeom(op string, input, kernel *tensor.RawTensor, stride, padding int) convGeom {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", op, len(kernelShape)))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("%s: invalid stride %d / padding %d", op, stride, padding))
	}

	g := convGeom{
		N: inputShape[0], CIn: inputShape[1], H: inputShape[2], W: inputShape[3],
		COut: kernelShape[0], KH: kernelShape[2], KW: kernelShape[3],
		stride: stride, padding: padding,
	}
	if kernelShape[1] != g.CIn {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, g.CIn, kernelShape[1]))
	}

	g.HOut = (g.H+2*padding-g.KH)/stride + 1
	g.WOut = (g.W+2*padding-g.KW)/stride + 1
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", op, g.HOut, g.WOut))
	}
	g.colRows = g.CIn * g.KH * g.KW
	g.colCols = g.HOut * g.WOut
	return g
}

// Conv2D performs a 2D convolution without bias.
//
// Input [N, C_in, H, W], kernel [C_out, C_in, K_h, K_w], output [N, C_out, H_out, W_out].
// Each sample is unfolded with im2col into [C_in*K_h*K_w, H_out*W_out] so that
//
//	out[n] = kernel[C_out, C_in*K_h*K_w] @ col[n]
//
// lands directly in NCHW order.
func (b *Backend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d", input, kernel)
	g := newConvGeom("conv2d", input, kernel, stride, padding)

	output := tensor.Zeros(tensor.Shape{g.N, g.COut, g.HOut, g.WOut})
	inputData := input.AsFloat32()
	kernelData := kernel.AsFloat32()
	outputData := output.AsFloat32()

	inStride := g.CIn * g.H * g.W
	outStride := g.COut * g.colCols

	parallel.For(g.N, func(n int) {
		col := make([]float32, g.colRows*g.colCols)
		im2col(col, inputData[n*inStride:(n+1)*inStride], g)
		b.gemm(false, false, g.COut, g.colCols, g.colRows, kernelData, col, 0, outputData[n*outStride:(n+1)*outStride])
	}, b.par)

	return output
}

// Conv2DInputBackward computes the gradient of the loss with respect to the convolution input.
//
//	dcol[n] = kernel^T @ grad[n]   then col2im accumulates dcol back into [C_in, H, W]
func (b *Backend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d_input_backward", input, kernel, grad)
	g := newConvGeom("conv2d_input_backward", input, kernel, stride, padding)
	checkConvGrad("conv2d_input_backward", grad, g)

	inputGrad := tensor.Zeros(input.Shape())
	kernelData := kernel.AsFloat32()
	gradData := grad.AsFloat32()
	inputGradData := inputGrad.AsFloat32()

	inStride := g.CIn * g.H * g.W
	outStride := g.COut * g.colCols

	parallel.For(g.N, func(n int) {
		dcol := make([]float32, g.colRows*g.colCols)
		b.gemm(true, false, g.colRows, g.colCols, g.COut, kernelData, gradData[n*outStride:(n+1)*outStride], 0, dcol)
		col2im(inputGradData[n*inStride:(n+1)*inStride], dcol, g)
	}, b.par)

	return inputGrad
}

// Conv2DKernelBackward computes the gradient of the loss with respect to the kernel.
//
//	dkernel = sum_n grad[n] @ col[n]^T
//
// Per-sample partial products are reduced after the parallel section.
func (b *Backend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d_kernel_backward", input, kernel, grad)
	g := newConvGeom("conv2d_kernel_backward", input, kernel, stride, padding)
	checkConvGrad("conv2d_kernel_backward", grad, g)

	kernelGrad := tensor.Zeros(kernel.Shape())
	inputData := input.AsFloat32()
	gradData := grad.AsFloat32()

	inStride := g.CIn * g.H * g.W
	outStride := g.COut * g.colCols
	kernelSize := g.COut * g.colRows

	partials := make([][]float32, g.N)
	parallel.For(g.N, func(n int) {
		col := make([]float32, g.colRows*g.colCols)
		im2col(col, inputData[n*inStride:(n+1)*inStride], g)
		partial := make([]float32, kernelSize)
		b.gemm(false, true, g.COut, g.colRows, g.colCols, gradData[n*outStride:(n+1)*outStride], col, 0, partial)
		partials[n] = partial
	}, b.par)

	out := kernelGrad.AsFloat32()
	for _, partial := range partials {
		for i, v := range partial {
			out[i] += v
		}
	}
	return kernelGrad
}

func checkConvGrad(op string, grad *tensor.RawTensor, g convGeom) {
	want := tensor.Shape{g.N, g.COut, g.HOut, g.WOut}
	if !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("%s: gradient shape %v, expected %v", op, grad.Shape(), want))
	}
}

// im2col unfolds one sample [C, H, W] into col [C*KH*KW, HOut*WOut].
// Row index is (c, kh, kw); column index is the output position.
func im2col(col, input []float32, g convGeom) {
	for c := 0; c < g.CIn; c++ {
		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				row := ((c*g.KH+kh)*g.KW + kw) * g.colCols
				for oh := 0; oh < g.HOut; oh++ {
					h := oh*g.stride - g.padding + kh
					dst := col[row+oh*g.WOut : row+(oh+1)*g.WOut]
					if h < 0 || h >= g.H {
						for i := range dst {
							dst[i] = 0
						}
						continue
					}
					src := input[(c*g.H+h)*g.W : (c*g.H+h+1)*g.W]
					for ow := range dst {
						w := ow*g.stride - g.padding + kw
						if w >= 0 && w < g.W {
							dst[ow] = src[w]
						} else {
							dst[ow] = 0
						}
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it scatters-adds col back into one sample [C, H, W].
func col2im(input, col []float32, g convGeom) {
	for c := 0; c < g.CIn; c++ {
		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				row := ((c*g.KH+kh)*g.KW + kw) * g.colCols
				for oh := 0; oh < g.HOut; oh++ {
					h := oh*g.stride - g.padding + kh
					if h < 0 || h >= g.H {
						continue
					}
					base := (c*g.H + h) * g.W
					for ow := 0; ow < g.WOut; ow++ {
						w := ow*g.stride - g.padding + kw
						if w >= 0 && w < g.W {
							input[base+w] += col[row+oh*g.WOut+ow]
						}
					}
				}
			}
		}
	}
}
