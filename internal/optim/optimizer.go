// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - Adam: Adaptive Moment Estimation (the default for this trainer)
//   - SGD: Stochastic Gradient Descent with momentum
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.005})
//
//	for _, batch := range batches {
//	    optimizer.ZeroGrad()
//	    ad.Tape().StartRecording()
//	    loss, _ := ad.CrossEntropy(model.Forward(batch.Images, nn.Train), batch.Labels)
//	    ad.Tape().StopRecording()
//	    optimizer.Step(ad.Backward(loss))
//	    ad.Tape().Clear()
//	}
package optim

import (
	"fmt"
	"strings"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// Takes a gradient map from Backward() and updates parameters in-place.
	// Parameters without an entry in grads are left unchanged.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// Name identifies the algorithm ("adam", "sgd").
	Name() string
}

// Config selects and configures an optimizer by name.
type Config struct {
	Name     string  // "adam" or "sgd"
	LR       float32 // Learning rate
	Momentum float32 // SGD only
}

// New creates the optimizer named by cfg.
func New(params []*nn.Parameter, cfg Config) (Optimizer, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "adam":
		return NewAdam(params, AdamConfig{LR: cfg.LR}), nil
	case "sgd":
		return NewSGD(params, SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum}), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q (want adam or sgd)", cfg.Name)
	}
}

// getGradient retrieves the gradient for a parameter and records it on the parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
func getGradient(param *nn.Parameter, grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	grad, ok := grads[param.Tensor()]
	if !ok {
		return nil
	}
	param.SetGrad(grad)
	return grad
}
