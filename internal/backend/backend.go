// Package backend implements the float32 NCHW kernels behind the network: convolution,
// batch normalization, pooling, activations, the classifier head and the loss.
//
// Dense products go through the selected device.Device; everything else runs on the host,
// split across goroutines with the parallel package. Kernels panic on shape mismatches,
// which are programming errors; data-dependent failures (bad labels) are returned as errors.
package backend

import (
	"fmt"

	"github.com/born-ml/resnet/internal/device"
	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// Backend runs kernels on one compute device.
type Backend struct {
	dev device.Device
	par parallel.Config
}

// New creates a backend on dev using par for host-side loops.
func New(dev device.Device, par parallel.Config) *Backend {
	return &Backend{dev: dev, par: par}
}

// NewCPU is a convenience constructor for tests and tools.
func NewCPU() *Backend {
	return New(device.NewCPU(), parallel.DefaultConfig())
}

// Name returns the device description.
func (b *Backend) Name() string {
	return b.dev.Name()
}

// Device returns the compute device.
func (b *Backend) Device() device.Device {
	return b.dev
}

func (b *Backend) gemm(transA, transB bool, m, n, k int, a, bm []float32, beta float32, c []float32) {
	if err := b.dev.Gemm(transA, transB, m, n, k, 1, a, bm, beta, c); err != nil {
		panic(fmt.Sprintf("backend: %v", err))
	}
}

func requireFloat32(op string, ts ...*tensor.RawTensor) {
	for _, t := range ts {
		if t.DType() != tensor.Float32 {
			panic(fmt.Sprintf("%s: unsupported dtype %s", op, t.DType()))
		}
	}
}

func requireSameShape(op string, a, b *tensor.RawTensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
}
