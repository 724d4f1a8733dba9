// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training potentials.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Optimizer interface for custom optimizers
//
// Optimizers work on flat parameter vectors. Params.Flatten and
// Params.Unflatten of the potential package convert to and from them.
//
// # Basic Usage
//
//	opt := optim.NewAdam(optim.AdamConfig{LR: 1e-3})
//	x := params.Flatten(nil)
//	for epoch := range 100 {
//	    grad.Zero()
//	    // ... Backward / BackwardForce into grad ...
//	    opt.Step(x, grad.Flatten(nil))
//	    params.Unflatten(x)
//	}
package optim
