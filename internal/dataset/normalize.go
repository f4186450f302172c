package dataset

// Per-channel normalization used for every image: (x/255 - mean) / std
// with mean = std = 0.5 on all three channels.
const (
	normMean = 0.5
	normStd  = 0.5
)

// NormalizeByte maps a pixel byte to [-1, 1].
func NormalizeByte(b byte) float32 {
	return (float32(b)/255 - normMean) / normStd
}

// Normalize writes NormalizeByte(src[i]) to dst[i]. dst must be at least len(src).
func Normalize(dst []float32, src []byte) {
	for i, b := range src {
		dst[i] = NormalizeByte(b)
	}
}
