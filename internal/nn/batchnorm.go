package nn

import (
	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/tensor"
)

// Batch norm defaults.
const (
	BatchNormMomentum = 0.1
	BatchNormEps      = 1e-5
)

// BatchNorm2D normalizes each channel of an NCHW tensor.
//
// In Train mode it normalizes with the batch statistics and folds them into the
// running estimates:
//
//	running = (1 - momentum) * running + momentum * batch
//
// using the unbiased batch variance. In Eval mode it uses the running estimates.
type BatchNorm2D struct {
	gamma       *Parameter
	beta        *Parameter
	runningMean *Buffer
	runningVar  *Buffer
	momentum    float32
	eps         float32
	backend     *autodiff.Backend
}

// NewBatchNorm2D creates a batch norm with gamma=1, beta=0, mean=0, var=1.
func NewBatchNorm2D(name string, channels int, b *autodiff.Backend) *BatchNorm2D {
	gamma := tensor.Zeros(tensor.Shape{channels})
	gamma.Fill(1)
	runningVar := tensor.Zeros(tensor.Shape{channels})
	runningVar.Fill(1)

	return &BatchNorm2D{
		gamma:       NewParameter(name+".weight", gamma),
		beta:        NewParameter(name+".bias", tensor.Zeros(tensor.Shape{channels})),
		runningMean: NewBuffer(name+".running_mean", tensor.Zeros(tensor.Shape{channels})),
		runningVar:  NewBuffer(name+".running_var", runningVar),
		momentum:    BatchNormMomentum,
		eps:         BatchNormEps,
		backend:     b,
	}
}

// Forward normalizes x according to mode.
func (bn *BatchNorm2D) Forward(x *tensor.RawTensor, mode Mode) *tensor.RawTensor {
	if mode == Eval {
		return bn.backend.BatchNorm2DEval(x, bn.gamma.Tensor(), bn.beta.Tensor(),
			bn.runningMean.Tensor(), bn.runningVar.Tensor(), bn.eps)
	}

	out, stats := bn.backend.BatchNorm2DTrain(x, bn.gamma.Tensor(), bn.beta.Tensor(), bn.eps)

	unbias := float32(1)
	if stats.Count > 1 {
		unbias = float32(stats.Count) / float32(stats.Count-1)
	}
	mean := bn.runningMean.Tensor().AsFloat32()
	variance := bn.runningVar.Tensor().AsFloat32()
	for c := range mean {
		mean[c] = (1-bn.momentum)*mean[c] + bn.momentum*stats.Mean[c]
		variance[c] = (1-bn.momentum)*variance[c] + bn.momentum*stats.Var[c]*unbias
	}
	return out
}

// Parameters returns [gamma, beta].
func (bn *BatchNorm2D) Parameters() []*Parameter {
	return []*Parameter{bn.gamma, bn.beta}
}

// Buffers returns [running_mean, running_var].
func (bn *BatchNorm2D) Buffers() []*Buffer {
	return []*Buffer{bn.runningMean, bn.runningVar}
}
