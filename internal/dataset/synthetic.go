package dataset

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Synthetic generates n RGB images of side size with labels cycling through
// classes. Each class has its own mean color and pixels get Gaussian noise,
// so a network can separate the classes. The result depends only on seed.
func Synthetic(n, classes, size int, seed uint64) (*Memory, error) {
	if n < 0 || classes <= 0 || size <= 0 {
		return nil, fmt.Errorf("dataset: invalid synthetic config n=%d classes=%d size=%d", n, classes, size)
	}
	src := rand.NewSource(seed)
	noise := distuv.Normal{Mu: 0, Sigma: 24, Src: src}
	rng := rand.New(src)

	palette := make([][CIFARChannels]float64, classes)
	for c := range palette {
		for ch := range palette[c] {
			palette[c][ch] = float64(rng.Intn(256))
		}
	}

	plane := size * size
	images := make([]byte, n*CIFARChannels*plane)
	labels := make([]int32, n)
	for i := 0; i < n; i++ {
		label := i % classes
		labels[i] = int32(label)
		img := images[i*CIFARChannels*plane : (i+1)*CIFARChannels*plane]
		for ch := 0; ch < CIFARChannels; ch++ {
			for p := 0; p < plane; p++ {
				img[ch*plane+p] = clampByte(palette[label][ch] + noise.Rand())
			}
		}
	}
	return NewMemory(tensor.Shape{CIFARChannels, size, size}, images, labels)
}

func clampByte(v float64) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v)
	}
}
