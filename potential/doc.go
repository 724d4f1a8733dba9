// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package potential evaluates and trains a machine-learned interatomic
// potential built on rotation-invariant atomic descriptors.
//
// # Overview
//
// The energy of a center atom is a small feed-forward network applied to
// the descriptor of its neighbor list. The descriptor expands every
// neighbor displacement in a radial (Chebyshev) and angular (real
// spherical harmonic) basis, sums the expansion into channels chosen by a
// weighting policy, and contracts the channels into rotation-invariant
// pair, triple and quadruple products.
//
// # Basic Usage
//
//	eng, err := potential.New(potential.Config{
//	    Descriptor: potential.DescriptorConfig{
//	        Cutoff:       5,
//	        RadialOrder:  4,
//	        Degree:       4,
//	        TripleDegree: 3,
//	        QuadDegree:   2,
//	        NumTypes:     2,
//	        Policy:       potential.PerTypeMerged,
//	    },
//	    Hidden: []int{16, 16},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	params, _ := eng.NewParams(rand.New(rand.NewSource(1)))
//
//	ws := eng.NewWorkspace(potential.OrderForce)
//	energy, err := eng.Forward(env, params, ws)
//	grads, err := eng.Force(env, params, ws)
//
// # Pass Order
//
// All passes of one center atom share a Workspace. Forward comes first;
// Backward and Force need a matching Forward; BackwardForce needs a
// matching Force. Violations return ErrNotForwarded, ErrStaleCache,
// ErrNoForce or ErrTraceOrder instead of undefined results.
//
// A Workspace is not safe for concurrent use. EvaluateBatch runs many
// atoms concurrently with one Workspace per worker.
package potential
