// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nnet provides feed-forward acoustic-model components with
// Kaldi-compatible serialization.
//
// # Overview
//
// This package contains:
//   - Nonlinearities: Sigmoid, Tanh, Softmax
//   - Updatable layers: Affine, BlockAffine, MixtureProb
//   - Fixed layers: Permute
//   - Factory: NewByType, ReadNew, NewFromString, ReadConfig
//   - Models and examples: AmNnet, Example
//   - Training: Forward, Backward, Trainer, Shrink
//
// # Basic Usage
//
//	import "github.com/born-ml/nnet/nnet"
//
//	func main() {
//	    rng := rand.New(rand.NewPCG(1, 2))
//	    components := []nnet.Component{
//	        nnet.NewAffineComponent(0.01, 0, 40, 512, 0.05, rng),
//	        nnet.NewTanhComponent(512),
//	        nnet.NewAffineComponent(0.01, 0, 512, 3000, 0.05, rng),
//	        nnet.NewSoftmaxComponent(3000),
//	    }
//	    model, err := nnet.NewAmNnet(nnet.TransitionModel{}, components)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := model.WriteFile("0.mdl", true); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Data Layout
//
// Activations are gonum *mat.Dense matrices with one frame per row.
// Output buffers passed to Propagate and Backprop are either empty, in
// which case they are sized by the callee, or already have the exact
// output shape. Any other shape is a programming error and panics.
//
// # Sign Convention
//
// Derivatives are taken with respect to an objective that is maximized,
// so updates add the learning rate times the gradient.
//
// # Serialization
//
// Every component reads and writes the Kaldi token stream in binary or
// text mode. Readers detect the mode from the stream header.
package nnet
