// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/device"
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/serialization"
	"github.com/born-ml/resnet/tensor"
)

// Backend records differentiable kernel calls for backpropagation.
type Backend = autodiff.Backend

// NewCPUBackend creates a backend on the host CPU using every physical core.
func NewCPUBackend() *Backend {
	return NewBackend(device.NewCPU())
}

// Device runs the matrix products behind convolutions and linear layers.
// Call Release when the device is no longer needed.
type Device = device.Device

// SelectDevice resolves "auto", "cpu" or "webgpu" to a device. "auto" (or "") uses the
// GPU when one can be initialized and falls back to the CPU.
func SelectDevice(name string) (Device, error) {
	pref, err := device.ParsePreference(name)
	if err != nil {
		return nil, err
	}
	return device.Select(pref)
}

// NewBackend creates a backend on dev.
func NewBackend(dev Device) *Backend {
	return autodiff.New(backend.New(dev, parallel.DefaultConfig()))
}

// Module interface defines the common interface for all neural network modules.
type Module = nn.Module

// Parameter represents a trainable parameter in a neural network.
type Parameter = nn.Parameter

// NewParameter wraps t as a trainable parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, t)
}

// Mode selects training or inference behavior.
type Mode = nn.Mode

// Forward modes.
const (
	Train = nn.Train
	Eval  = nn.Eval
)

// ResNetConfig describes a CIFAR-style residual network.
type ResNetConfig = nn.ResNetConfig

// ResNet is the residual classifier.
type ResNet = nn.ResNet

// DefaultResNetConfig returns the ResNet-18 layout for 32x32 RGB images.
func DefaultResNetConfig() ResNetConfig {
	return nn.DefaultResNetConfig()
}

// NewResNet builds a network from cfg.
func NewResNet(cfg ResNetConfig, b *Backend) (*ResNet, error) {
	return nn.NewResNet(cfg, b)
}

// ResNet18 builds the CIFAR-10 ResNet-18 (11,173,962 parameters).
//
// Example:
//
//	model, err := nn.ResNet18(nn.NewCPUBackend(), 42)
func ResNet18(b *Backend, seed int64) (*ResNet, error) {
	return nn.ResNet18(b, seed)
}

// CheckpointMeta records the epoch and validation loss of a saved model.
type CheckpointMeta = serialization.CheckpointMeta

// SaveStateDict writes the model state to path. meta may be nil.
func SaveStateDict(path string, model *ResNet, meta *CheckpointMeta) error {
	return nn.SaveStateDict(path, model, meta)
}

// LoadStateDict restores a model saved with SaveStateDict.
func LoadStateDict(path string, model *ResNet) (*CheckpointMeta, error) {
	return nn.LoadStateDict(path, model)
}

// Predict returns the arg-max class of every image in a [N, C, H, W] batch.
func Predict(model *ResNet, b *Backend, images *tensor.RawTensor) []int {
	return b.ArgMax(model.Forward(images, Eval))
}
