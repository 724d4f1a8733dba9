// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the energy network of a potential.
//
// # Overview
//
// A Network is a stack of fully connected SiLU layers followed by a linear
// output node, optionally squashed by B*tanh(y/B). Its derivatives are
// written by hand:
//   - Backward: gradient of the output with respect to parameters and input
//   - GradBackward: gradient of a directional input derivative, needed to
//     train on forces
//
// # Basic Usage
//
//	net, err := nn.NewNetwork(in, []int{16, 16}, 0, rand.New(rand.NewSource(1)))
//	tr := net.NewTrace()
//	e := net.Forward(x, nn.OrderFirst, tr)
//	grad := net.Gradient()
//	err = net.Backward(tr, 1, grad, nil)
package nn
