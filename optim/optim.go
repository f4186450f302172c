// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim is the public API for the optimizers used by the trainer.
package optim

import (
	"github.com/born-ml/resnet/internal/optim"
	"github.com/born-ml/resnet/nn"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config selects an optimizer by name.
type Config = optim.Config

// New creates the optimizer named by cfg ("adam" or "sgd").
func New(params []*nn.Parameter, cfg Config) (Optimizer, error) {
	return optim.New(params, cfg)
}

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	model, _ := nn.ResNet18(nn.NewCPUBackend(), 1)
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9})
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
//
// Example:
//
//	model, _ := nn.ResNet18(nn.NewCPUBackend(), 1)
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.005})
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}
