package device

import (
	"fmt"
	"strings"

	"github.com/born-ml/resnet/internal/tensor"
	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// CPUDevice runs products through gonum's pure-Go BLAS.
type CPUDevice struct {
	name string
}

// NewCPU creates the host device.
func NewCPU() *CPUDevice {
	return &CPUDevice{name: describeCPU()}
}

// Kind returns KindCPU.
func (d *CPUDevice) Kind() Kind { return KindCPU }

// Name describes the host processor.
func (d *CPUDevice) Name() string { return d.name }

// Tag returns the tensor device tag.
func (d *CPUDevice) Tag() tensor.Device { return tensor.CPU }

// Release is a no-op for the host device.
func (d *CPUDevice) Release() {}

// Gemm computes C = alpha * op(A) @ op(B) + beta * C.
func (d *CPUDevice) Gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) error {
	if err := checkGemm(m, n, k, a, b, c); err != nil {
		return err
	}

	ga := blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	ta := blas.NoTrans
	if transA {
		ga = blas32.General{Rows: k, Cols: m, Stride: m, Data: a}
		ta = blas.Trans
	}
	gb := blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	tb := blas.NoTrans
	if transB {
		gb = blas32.General{Rows: n, Cols: k, Stride: k, Data: b}
		tb = blas.Trans
	}
	gc := blas32.General{Rows: m, Cols: n, Stride: n, Data: c}

	blas32.Gemm(ta, tb, alpha, ga, gb, beta, gc)
	return nil
}

func describeCPU() string {
	brand := strings.TrimSpace(cpuid.CPU.BrandName)
	if brand == "" {
		brand = cpuid.CPU.VendorString
	}
	if brand == "" {
		brand = "generic"
	}

	var features []string
	if cpuid.CPU.Supports(cpuid.AVX512F) {
		features = append(features, "AVX512")
	} else if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
		features = append(features, "AVX2")
	}
	if cpuid.CPU.Supports(cpuid.ASIMD) {
		features = append(features, "NEON")
	}

	desc := fmt.Sprintf("CPU (%s, %d cores/%d threads", brand, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
	if len(features) > 0 {
		desc += ", " + strings.Join(features, "+")
	}
	return desc + ")"
}
