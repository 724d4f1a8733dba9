// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand"

	"github.com/born-ml/mlip/internal/nn"
)

// Network is a SiLU feed-forward network with a scalar output.
type Network = nn.Network

// Layer is one affine map followed by SiLU.
type Layer = nn.Layer

// Trace records one Forward for the backward sweeps.
type Trace = nn.Trace

// Order is the derivative order a Trace supports.
type Order = nn.Order

// Trace orders.
const (
	OrderValue  = nn.OrderValue
	OrderFirst  = nn.OrderFirst
	OrderSecond = nn.OrderSecond
)

// Errors.
var (
	ErrTopology   = nn.ErrTopology
	ErrTraceOrder = nn.ErrTraceOrder
	ErrNoTrace    = nn.ErrNoTrace
	ErrParamCount = nn.ErrParamCount
)

// NewNetwork creates a network with Xavier-initialized weights and zero biases.
//
// Example:
//
//	net, err := nn.NewNetwork(33, []int{16, 16}, 0, rand.New(rand.NewSource(1)))
func NewNetwork(in int, hidden []int, bound float64, rng *rand.Rand) (*Network, error) {
	return nn.NewNetwork(in, hidden, bound, rng)
}

// Xavier fills w with Xavier-uniform values for a fanIn x fanOut matrix.
func Xavier(fanIn, fanOut int, w []float64, rng *rand.Rand) {
	nn.Xavier(fanIn, fanOut, w, rng)
}
