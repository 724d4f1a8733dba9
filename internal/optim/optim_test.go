package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/mlip/internal/optim"
)

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	x := []float64{2.0}
	opt := optim.NewSGD(optim.SGDConfig{LR: 0.1})
	opt.Step(x, []float64{1.0})

	// Expected: x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	assert.InDelta(t, 1.9, x[0], 1e-15)
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	x := []float64{1.0}
	opt := optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// Step 1: v = 1.0, x = 1.0 - 0.1 = 0.9
	opt.Step(x, []float64{1.0})
	assert.InDelta(t, 0.9, x[0], 1e-15)

	// Step 2: v = 0.9*1.0 + 1.0 = 1.9, x = 0.9 - 0.19 = 0.71
	opt.Step(x, []float64{1.0})
	assert.InDelta(t, 0.71, x[0], 1e-15)
}

func TestSGD_Defaults(t *testing.T) {
	opt := optim.NewSGD(optim.SGDConfig{})
	assert.Equal(t, 0.01, opt.GetLR())
	opt.SetLR(0.5)
	assert.Equal(t, 0.5, opt.GetLR())
}

// TestAdam_FirstStep checks that the bias-corrected first step moves every
// parameter by lr against the sign of its gradient.
func TestAdam_FirstStep(t *testing.T) {
	x := []float64{1.0, -2.0, 0.5}
	opt := optim.NewAdam(optim.AdamConfig{LR: 0.01})
	opt.Step(x, []float64{3.0, -0.5, 1e-3})

	assert.InDelta(t, 0.99, x[0], 1e-8)
	assert.InDelta(t, -1.99, x[1], 1e-8)
	assert.InDelta(t, 0.49, x[2], 1e-6)
	assert.Equal(t, 1, opt.Steps())
}

func TestAdam_Defaults(t *testing.T) {
	opt := optim.NewAdam(optim.AdamConfig{})
	assert.Equal(t, 0.001, opt.GetLR())
}

// Both optimizers minimize a convex quadratic.
func TestOptimizers_Converge(t *testing.T) {
	tests := []struct {
		name string
		opt  optim.Optimizer
		tol  float64
	}{
		{"sgd", optim.NewSGD(optim.SGDConfig{LR: 0.1}), 1e-6},
		{"momentum", optim.NewSGD(optim.SGDConfig{LR: 0.05, Momentum: 0.9}), 1e-6},
		{"adam", optim.NewAdam(optim.AdamConfig{LR: 0.05}), 1e-2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// f(x) = sum_i c_i (x_i - t_i)^2
			c := []float64{1, 2, 0.5}
			target := []float64{3, -1, 2}
			x := make([]float64, 3)
			g := make([]float64, 3)
			for step := 0; step < 2000; step++ {
				for i := range x {
					g[i] = 2 * c[i] * (x[i] - target[i])
				}
				tt.opt.Step(x, g)
			}
			for i := range x {
				assert.InDelta(t, target[i], x[i], tt.tol, "coordinate %d", i)
			}
		})
	}
}

func TestStep_PanicsOnLengthMismatch(t *testing.T) {
	assert.Panics(t, func() { optim.NewSGD(optim.SGDConfig{}).Step(make([]float64, 2), make([]float64, 3)) })

	adam := optim.NewAdam(optim.AdamConfig{})
	adam.Step(make([]float64, 2), make([]float64, 2))
	assert.Panics(t, func() { adam.Step(make([]float64, 3), make([]float64, 3)) })
	assert.False(t, math.IsNaN(adam.GetLR()))
}
