package nn

import (
	"math"

	"github.com/born-ml/resnet/internal/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// KaimingNormal fills t from N(0, 2/fanIn), the He initialization for layers followed by ReLU.
//
// Reference: "Delving Deep into Rectifiers" (He et al., 2015).
func KaimingNormal(t *tensor.RawTensor, fanIn int, src rand.Source) {
	dist := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2 / float64(fanIn)), Src: src}
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
}

// Uniform fills t from U(-bound, bound).
func Uniform(t *tensor.RawTensor, bound float64, src rand.Source) {
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
}
