// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn is the public API for the residual network used by the trainer.
//
// # Overview
//
// This package re-exports:
//   - ResNet, ResNetConfig and the ResNet-18 constructor
//   - Module, Parameter and Mode (Train / Eval)
//   - Checkpoint save and load in the .born format
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/resnet/nn"
//	)
//
//	func main() {
//	    backend := nn.NewCPUBackend()
//	    model, err := nn.ResNet18(backend, 1)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // images: [N, 3, 32, 32] float32
//	    logits := model.Forward(images, nn.Eval)
//	}
//
// # Checkpoints
//
// A model trained by cmd/resnet is restored with LoadStateDict:
//
//	meta, err := nn.LoadStateDict("model_cifar.pt", model)
//
// Loading fails when a tensor is missing, has the wrong shape, or the file
// was written by a different architecture.
package nn
