//go:build !windows

package device

import "fmt"

// NewWebGPU reports the accelerator as unavailable; the WebGPU path is built on Windows only.
func NewWebGPU() (Device, error) {
	return nil, fmt.Errorf("%w: webgpu backend is only built on windows", ErrUnavailable)
}
