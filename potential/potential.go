// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package potential

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/channel"
	"github.com/born-ml/mlip/internal/descriptor"
	"github.com/born-ml/mlip/internal/engine"
	"github.com/born-ml/mlip/internal/parallel"
)

// Engine evaluates the energy model and its derivatives.
type Engine = engine.Engine

// Config is the construction-time choice of descriptor and network.
type Config = engine.Config

// DescriptorConfig selects the descriptor.
type DescriptorConfig = descriptor.Config

// ConfigError reports an invalid configuration field.
type ConfigError = descriptor.ConfigError

// Params are the trainable parameters; a zeroed copy accumulates gradients.
type Params = engine.Params

// Workspace holds the caches of one center atom.
type Workspace = engine.Workspace

// Order selects which passes a Workspace supports.
type Order = engine.Order

// Workspace orders.
const (
	OrderEnergy   = engine.OrderEnergy
	OrderGradient = engine.OrderGradient
	OrderForce    = engine.OrderForce
)

// Result is one entry of EvaluateBatch.
type Result = engine.Result

// Environment is the neighbor list of one center atom.
type Environment = descriptor.Environment

// Neighbor is one entry of a neighbor list.
type Neighbor = descriptor.Neighbor

// Policy selects how neighbor types map to descriptor channels.
type Policy = channel.Policy

// Weighting policies.
const (
	None          = channel.None
	PerType       = channel.PerType
	PerTypeMerged = channel.PerTypeMerged
	SignedParity  = channel.SignedParity
	Fuse          = channel.Fuse
	FuseMerged    = channel.FuseMerged
)

// RadialMode selects whether the degree-0 pair invariant is kept.
type RadialMode = descriptor.RadialMode

// Radial modes.
const (
	RadialSquare = descriptor.RadialSquare
	RadialNone   = descriptor.RadialNone
)

// ParallelConfig bounds the workers of EvaluateBatch.
type ParallelConfig = parallel.Config

// Errors.
var (
	ErrNotForwarded = engine.ErrNotForwarded
	ErrStaleCache   = engine.ErrStaleCache
	ErrNoForce      = engine.ErrNoForce
	ErrTraceOrder   = engine.ErrTraceOrder
	ErrCenterType   = engine.ErrCenterType
	ErrParams       = engine.ErrParams
	ErrCoincident   = descriptor.ErrCoincident
	ErrNeighborType = descriptor.ErrNeighborType
)

// New validates cfg and creates an Engine.
//
// Example:
//
//	eng, err := potential.New(potential.Config{
//	    Descriptor: potential.DescriptorConfig{Cutoff: 5, RadialOrder: 3, Degree: 3,
//	        TripleDegree: 3, QuadDegree: 2, NumTypes: 1, Policy: potential.None},
//	    Hidden: []int{8},
//	})
func New(cfg Config) (*Engine, error) {
	return engine.New(cfg)
}

// ParsePolicy maps a configuration name such as "per-type-merged" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	return channel.ParsePolicy(s)
}

// FromPositions builds the environment of an atom at center from absolute
// neighbor positions.
func FromPositions(center r3.Vec, centerType int, pos []r3.Vec, types []int) Environment {
	return descriptor.FromPositions(center, centerType, pos, types)
}

// DefaultParallel returns a worker configuration sized to the machine.
func DefaultParallel() ParallelConfig {
	return parallel.DefaultConfig()
}
