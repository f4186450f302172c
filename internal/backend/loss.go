package backend

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/resnet/internal/tensor"
)

// ErrLabelOutOfRange is returned when a target class index is outside [0, classes).
var ErrLabelOutOfRange = errors.New("label out of range")

// CrossEntropy returns the mean negative log-likelihood of the log-softmax of logits [N, C]
// against int32 labels [N], as a scalar tensor.
func (b *Backend) CrossEntropy(logits, labels *tensor.RawTensor) (*tensor.RawTensor, error) {
	n, classes, err := checkLabels(logits, labels)
	if err != nil {
		return nil, err
	}
	x := logits.AsFloat32()
	y := labels.AsInt32()

	var total float64
	for i := 0; i < n; i++ {
		row := x[i*classes : (i+1)*classes]
		total -= logSoftmaxAt(row, int(y[i]))
	}

	loss := tensor.Zeros(tensor.Shape{})
	loss.AsFloat32()[0] = float32(total / float64(n))
	return loss, nil
}

// CrossEntropyBackward returns d(loss)/d(logits) = (softmax(logits) - onehot(labels)) / N,
// scaled by grad (the upstream scalar gradient).
func (b *Backend) CrossEntropyBackward(grad, logits, labels *tensor.RawTensor) *tensor.RawTensor {
	n, classes, err := checkLabels(logits, labels)
	if err != nil {
		panic(fmt.Sprintf("cross_entropy_backward: %v", err))
	}
	scale := grad.AsFloat32()[0] / float32(n)
	x := logits.AsFloat32()
	y := labels.AsInt32()

	out := tensor.Zeros(logits.Shape())
	dst := out.AsFloat32()
	for i := 0; i < n; i++ {
		row := x[i*classes : (i+1)*classes]
		maxVal := rowMax(row)
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - maxVal))
		}
		for j, v := range row {
			p := math.Exp(float64(v-maxVal)) / sum
			if j == int(y[i]) {
				p--
			}
			dst[i*classes+j] = float32(p) * scale
		}
	}
	return out
}

// ArgMax returns the index of the largest logit of each row. Ties resolve to the lowest index.
func (b *Backend) ArgMax(logits *tensor.RawTensor) []int {
	requireFloat32("argmax", logits)
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("argmax: expected 2D logits, got %v", shape))
	}
	n, classes := shape[0], shape[1]
	x := logits.AsFloat32()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		best := 0
		for j := 1; j < classes; j++ {
			if x[i*classes+j] > x[i*classes+best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

func checkLabels(logits, labels *tensor.RawTensor) (n, classes int, err error) {
	requireFloat32("cross_entropy", logits)
	if labels.DType() != tensor.Int32 {
		panic(fmt.Sprintf("cross_entropy: labels must be int32, got %s", labels.DType()))
	}
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross_entropy: expected 2D logits, got %v", shape))
	}
	n, classes = shape[0], shape[1]
	if labels.NumElements() != n {
		panic(fmt.Sprintf("cross_entropy: %d labels for batch of %d", labels.NumElements(), n))
	}
	for i, y := range labels.AsInt32() {
		if y < 0 || int(y) >= classes {
			return 0, 0, fmt.Errorf("%w: sample %d has label %d, want [0, %d)", ErrLabelOutOfRange, i, y, classes)
		}
	}
	return n, classes, nil
}

// logSoftmaxAt computes log(softmax(row)[k]) with the max-shift for stability.
func logSoftmaxAt(row []float32, k int) float64 {
	maxVal := rowMax(row)
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxVal))
	}
	return float64(row[k]-maxVal) - math.Log(sum)
}

func rowMax(row []float32) float32 {
	m := row[0]
	for _, v := range row[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
