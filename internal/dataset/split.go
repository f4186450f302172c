package dataset

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// SplitIndices shuffles [0, n) and returns the last n - floor(validFrac*n)
// indices as train and the first floor(validFrac*n) as valid.
func SplitIndices(n int, validFrac float64, rng *rand.Rand) (train, valid []int, err error) {
	if n < 0 {
		return nil, nil, fmt.Errorf("split: negative size %d", n)
	}
	if validFrac < 0 || validFrac >= 1 || math.IsNaN(validFrac) {
		return nil, nil, fmt.Errorf("split: validation fraction %v not in [0, 1)", validFrac)
	}
	perm := rng.Perm(n)
	split := int(math.Floor(validFrac * float64(n)))
	return perm[split:], perm[:split], nil
}

// Range returns [0, n).
func Range(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
