// Package optim implements first-order optimizers over flat parameter
// vectors.
//
// Parameters and gradients travel as []float64 in a fixed order (see
// engine.Params.Flatten), so an optimizer keeps its moment estimates as
// parallel slices and needs no knowledge of the model.
//
// Example usage:
//
//	opt := optim.NewAdam(optim.AdamConfig{LR: 1e-3})
//	for epoch := range epochs {
//	    grads := computeGradients(params)
//	    opt.Step(params, grads)
//	}
package optim

import "fmt"

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step updates params in place from grads. Both slices must keep the
	// same length across calls.
	Step(params, grads []float64)

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR changes the learning rate, for schedules.
	SetLR(lr float64)
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float64 // Learning rate
}

// checkStep panics when the slices disagree with each other or with the
// state allocated on the first step.
func checkStep(name string, params, grads []float64, state int) {
	if len(params) != len(grads) {
		panic(fmt.Sprintf("optim.%s.Step: %d params, %d gradients", name, len(params), len(grads)))
	}
	if state != 0 && state != len(params) {
		panic(fmt.Sprintf("optim.%s.Step: %d params, state holds %d", name, len(params), state))
	}
}
