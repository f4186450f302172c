// Package device selects the compute device used for the dense matrix products behind
// convolutions and linear layers.
//
// The choice is made once at startup (Select) and the resulting Device is threaded through
// the backend; nothing else in the process inspects the hardware.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/resnet/internal/tensor"
)

// ErrUnavailable is returned when the requested accelerator cannot be initialized.
var ErrUnavailable = errors.New("device not available")

// Kind identifies a device family.
type Kind int

// Supported device kinds.
const (
	KindCPU Kind = iota
	KindWebGPU
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindWebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// Device computes general matrix products on row-major float32 data:
//
//	C = alpha * op(A) @ op(B) + beta * C
//
// where op(A) is [m, k] and op(B) is [k, n]. When transA is set, A is stored as [k, m];
// when transB is set, B is stored as [n, k].
type Device interface {
	Kind() Kind
	Name() string
	Tag() tensor.Device
	Gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) error
	Release()
}

// Preference is the user-facing device choice.
type Preference string

// Device preferences accepted by Select.
const (
	Auto   Preference = "auto"
	CPU    Preference = "cpu"
	WebGPU Preference = "webgpu"
)

// ParsePreference validates a preference string.
func ParsePreference(s string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case Auto, CPU, WebGPU:
		return p, nil
	case "":
		return Auto, nil
	default:
		return "", fmt.Errorf("unknown device %q (want auto, cpu or webgpu)", s)
	}
}

// Select picks the device for the whole run. Auto uses the accelerator when one can be
// initialized and otherwise falls back to the CPU.
func Select(pref Preference) (Device, error) {
	switch pref {
	case CPU:
		return NewCPU(), nil
	case WebGPU:
		gpu, err := NewWebGPU()
		if err != nil {
			return nil, err
		}
		return gpu, nil
	case Auto, "":
		if gpu, err := NewWebGPU(); err == nil {
			return gpu, nil
		}
		return NewCPU(), nil
	default:
		return nil, fmt.Errorf("unknown device preference %q", pref)
	}
}

// checkGemm validates slice lengths before a product is dispatched.
func checkGemm(m, n, k int, a, b, c []float32) error {
	if m <= 0 || n <= 0 || k <= 0 {
		return fmt.Errorf("gemm: invalid dimensions m=%d n=%d k=%d", m, n, k)
	}
	if len(a) < m*k {
		return fmt.Errorf("gemm: A has %d elements, need %d", len(a), m*k)
	}
	if len(b) < k*n {
		return fmt.Errorf("gemm: B has %d elements, need %d", len(b), k*n)
	}
	if len(c) < m*n {
		return fmt.Errorf("gemm: C has %d elements, need %d", len(c), m*n)
	}
	return nil
}
