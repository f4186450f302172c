package device

// transpose returns the [cols, rows] transpose of a row-major [rows, cols] matrix.
func transpose(src []float32, rows, cols int) []float32 {
	dst := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dst[c*rows+r] = src[r*cols+c]
		}
	}
	return dst
}
