package backend

import (
	"fmt"
	"math"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// BatchStats are the per-channel statistics of one training-mode batch norm call.
// Var is the biased (population) variance used for normalization.
type BatchStats struct {
	Mean   []float32
	Var    []float32
	InvStd []float32
	Count  int // elements per channel (N*H*W)
}

// BatchNorm2DTrain normalizes x [N, C, H, W] with the batch's own per-channel statistics:
//
//	y = gamma * (x - mean) / sqrt(var + eps) + beta
func (b *Backend) BatchNorm2DTrain(x, gamma, beta *tensor.RawTensor, eps float32) (*tensor.RawTensor, *BatchStats) {
	requireFloat32("batchnorm2d", x, gamma, beta)
	n, c, h, w := x.Shape().NCHW()
	checkChannelParam("batchnorm2d", gamma, c)
	checkChannelParam("batchnorm2d", beta, c)

	plane := h * w
	stats := &BatchStats{
		Mean:   make([]float32, c),
		Var:    make([]float32, c),
		InvStd: make([]float32, c),
		Count:  n * plane,
	}

	xData := x.AsFloat32()
	out := tensor.Zeros(x.Shape())
	outData := out.AsFloat32()
	g := gamma.AsFloat32()
	bt := beta.AsFloat32()

	parallel.For(c, func(ch int) {
		var sum float64
		for s := 0; s < n; s++ {
			for _, v := range xData[(s*c+ch)*plane : (s*c+ch+1)*plane] {
				sum += float64(v)
			}
		}
		mean := sum / float64(stats.Count)

		var sq float64
		for s := 0; s < n; s++ {
			for _, v := range xData[(s*c+ch)*plane : (s*c+ch+1)*plane] {
				d := float64(v) - mean
				sq += d * d
			}
		}
		variance := sq / float64(stats.Count)
		invStd := 1 / math.Sqrt(variance+float64(eps))

		stats.Mean[ch] = float32(mean)
		stats.Var[ch] = float32(variance)
		stats.InvStd[ch] = float32(invStd)

		scale := g[ch] * float32(invStd)
		shift := bt[ch] - float32(mean)*scale
		for s := 0; s < n; s++ {
			off := (s*c + ch) * plane
			for i := off; i < off+plane; i++ {
				outData[i] = xData[i]*scale + shift
			}
		}
	}, b.par)

	return out, stats
}

// BatchNorm2DEval normalizes x with fixed running statistics.
func (b *Backend) BatchNorm2DEval(x, gamma, beta, runningMean, runningVar *tensor.RawTensor, eps float32) *tensor.RawTensor {
	requireFloat32("batchnorm2d_eval", x, gamma, beta, runningMean, runningVar)
	n, c, h, w := x.Shape().NCHW()
	for _, p := range []*tensor.RawTensor{gamma, beta, runningMean, runningVar} {
		checkChannelParam("batchnorm2d_eval", p, c)
	}

	plane := h * w
	xData := x.AsFloat32()
	out := tensor.Zeros(x.Shape())
	outData := out.AsFloat32()
	g := gamma.AsFloat32()
	bt := beta.AsFloat32()
	mean := runningMean.AsFloat32()
	variance := runningVar.AsFloat32()

	parallel.ForBatch(n, c, func(s, ch int) {
		scale := g[ch] / float32(math.Sqrt(float64(variance[ch]+eps)))
		shift := bt[ch] - mean[ch]*scale
		off := (s*c + ch) * plane
		for i := off; i < off+plane; i++ {
			outData[i] = xData[i]*scale + shift
		}
	}, b.par)

	return out
}

// BatchNorm2DBackward returns the gradients of a training-mode batch norm with respect to
// its input, gamma and beta. With xhat = (x - mean) * invStd and M = N*H*W:
//
//	dbeta  = sum(dy)
//	dgamma = sum(dy * xhat)
//	dx     = gamma * invStd / M * (M*dy - dbeta - xhat*dgamma)
func (b *Backend) BatchNorm2DBackward(grad, x, gamma *tensor.RawTensor, stats *BatchStats) (dx, dgamma, dbeta *tensor.RawTensor) {
	requireFloat32("batchnorm2d_backward", grad, x, gamma)
	requireSameShape("batchnorm2d_backward", grad, x)
	n, c, h, w := x.Shape().NCHW()
	checkChannelParam("batchnorm2d_backward", gamma, c)

	plane := h * w
	m := float32(stats.Count)
	xData := x.AsFloat32()
	gData := grad.AsFloat32()
	g := gamma.AsFloat32()

	dx = tensor.Zeros(x.Shape())
	dgamma = tensor.Zeros(tensor.Shape{c})
	dbeta = tensor.Zeros(tensor.Shape{c})
	dxData := dx.AsFloat32()
	dgData := dgamma.AsFloat32()
	dbData := dbeta.AsFloat32()

	parallel.For(c, func(ch int) {
		mean := stats.Mean[ch]
		invStd := stats.InvStd[ch]

		var sumDy, sumDyXhat float64
		for s := 0; s < n; s++ {
			off := (s*c + ch) * plane
			for i := off; i < off+plane; i++ {
				xhat := (xData[i] - mean) * invStd
				sumDy += float64(gData[i])
				sumDyXhat += float64(gData[i] * xhat)
			}
		}
		dbData[ch] = float32(sumDy)
		dgData[ch] = float32(sumDyXhat)

		k := g[ch] * invStd / m
		for s := 0; s < n; s++ {
			off := (s*c + ch) * plane
			for i := off; i < off+plane; i++ {
				xhat := (xData[i] - mean) * invStd
				dxData[i] = k * (m*gData[i] - float32(sumDy) - xhat*float32(sumDyXhat))
			}
		}
	}, b.par)

	return dx, dgamma, dbeta
}

func checkChannelParam(op string, p *tensor.RawTensor, c int) {
	if p.NumElements() != c {
		panic(fmt.Sprintf("%s: per-channel tensor has %d elements, expected %d", op, p.NumElements(), c))
	}
}
