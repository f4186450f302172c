package device

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naiveGemm is the reference product used to check device results.
func naiveGemm(transA, transB bool, m, n, k int, a, b []float32) []float32 {
	at := func(i, p int) float32 {
		if transA {
			return a[p*m+i]
		}
		return a[i*k+p]
	}
	bt := func(p, j int) float32 {
		if transB {
			return b[j*k+p]
		}
		return b[p*n+j]
	}
	out := make([]float32, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float32
			for p := 0; p < k; p++ {
				sum += at(i, p) * bt(p, j)
			}
			out[i*n+j] = sum
		}
	}
	return out
}

func seq(n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%7-3) * scale
	}
	return out
}

func TestCPUGemm(t *testing.T) {
	dev := NewCPU()
	defer dev.Release()

	m, n, k := 3, 4, 5
	for _, tc := range []struct {
		name           string
		transA, transB bool
	}{
		{"NN", false, false},
		{"TN", true, false},
		{"NT", false, true},
		{"TT", true, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := seq(m*k, 0.5)
			b := seq(k*n, 0.25)
			c := make([]float32, m*n)
			require.NoError(t, dev.Gemm(tc.transA, tc.transB, m, n, k, 1, a, b, 0, c))
			assert.InDeltaSlice(t, naiveGemm(tc.transA, tc.transB, m, n, k, a, b), c, 1e-5)
		})
	}
}

func TestCPUGemm_AlphaBeta(t *testing.T) {
	dev := NewCPU()
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	c := []float32{1, 1, 1, 1}

	require.NoError(t, dev.Gemm(false, false, 2, 2, 2, 2, a, b, 1, c))
	// [1 2; 3 4] @ [5 6; 7 8] = [19 22; 43 50]
	assert.Equal(t, []float32{39, 45, 87, 101}, c)
}

func TestCPUGemm_BadLengths(t *testing.T) {
	dev := NewCPU()
	err := dev.Gemm(false, false, 2, 2, 2, 1, []float32{1, 2, 3}, make([]float32, 4), 0, make([]float32, 4))
	assert.Error(t, err)

	err = dev.Gemm(false, false, 0, 2, 2, 1, nil, nil, 0, nil)
	assert.Error(t, err)
}

func TestCPUDescription(t *testing.T) {
	dev := NewCPU()
	assert.Equal(t, KindCPU, dev.Kind())
	assert.Contains(t, dev.Name(), "CPU (")
	assert.Equal(t, "cpu", dev.Kind().String())
}

func TestParsePreference(t *testing.T) {
	for in, want := range map[string]Preference{
		"":        Auto,
		"auto":    Auto,
		"CPU":     CPU,
		" webgpu": WebGPU,
	} {
		got, err := ParsePreference(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePreference("cuda")
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	dev, err := Select(CPU)
	require.NoError(t, err)
	assert.Equal(t, KindCPU, dev.Kind())

	dev, err = Select(Auto)
	require.NoError(t, err)
	require.NotNil(t, dev)
	dev.Release()

	_, err = Select("tpu")
	assert.Error(t, err)
}

func TestSelect_WebGPUUnavailable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("accelerator may be present on windows")
	}
	_, err := Select(WebGPU)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestTranspose(t *testing.T) {
	got := transpose([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, got)
}
