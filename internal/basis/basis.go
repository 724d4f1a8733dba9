// Package basis evaluates the per-neighbor radial and angular basis functions.
//
// For a neighbor displacement d with length r inside the cutoff radius R the
// package produces:
//   - a smooth cutoff value fc(r) that vanishes with zero slope at R
//   - Chebyshev radial values T_0..T_N evaluated on s = 2r/R - 1
//   - real spherical harmonics Y_lm for l = 0..L, flattened as l*l+l+m
//
// and, on request, the Cartesian gradients of all three with respect to d.
// All functions are pure and write into caller-supplied buffers.
package basis

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Ceilings of the supported basis orders.
const (
	MaxRadialOrder = 20
	MaxDegree      = 12
)

// Errors returned when a requested order cannot be represented.
var (
	ErrRadialOrder = errors.New("basis: radial order out of range")
	ErrDegree      = errors.New("basis: spherical harmonic degree out of range")
	ErrCutoff      = errors.New("basis: cutoff radius must be positive and finite")
)

// NumHarmonics returns the number of real spherical harmonics up to degree lmax.
func NumHarmonics(lmax int) int {
	return (lmax + 1) * (lmax + 1)
}

// Index returns the flat position of Y_lm.
func Index(l, m int) int {
	return l*l + l + m
}

// Evaluator computes the basis for one fixed configuration.
//
// An Evaluator holds no mutable state and may be shared between goroutines.
type Evaluator struct {
	cutoff      float64
	radialOrder int
	degree      int
}

// NewEvaluator validates the requested orders and returns an Evaluator.
//
// Orders above MaxRadialOrder or MaxDegree are rejected instead of truncated.
func NewEvaluator(cutoff float64, radialOrder, degree int) (*Evaluator, error) {
	if !(cutoff > 0) || cutoff > 1e300 {
		return nil, fmt.Errorf("%w: got %v", ErrCutoff, cutoff)
	}
	if radialOrder < 0 || radialOrder > MaxRadialOrder {
		return nil, fmt.Errorf("%w: got %d, supported 0..%d", ErrRadialOrder, radialOrder, MaxRadialOrder)
	}
	if degree < 0 || degree > MaxDegree {
		return nil, fmt.Errorf("%w: got %d, supported 0..%d", ErrDegree, degree, MaxDegree)
	}
	return &Evaluator{cutoff: cutoff, radialOrder: radialOrder, degree: degree}, nil
}

// Cutoff returns the cutoff radius.
func (e *Evaluator) Cutoff() float64 { return e.cutoff }

// RadialSize returns the number of radial functions (order + 1).
func (e *Evaluator) RadialSize() int { return e.radialOrder + 1 }

// Degree returns the maximum spherical harmonic degree.
func (e *Evaluator) Degree() int { return e.degree }

// HarmonicSize returns the number of spherical harmonics.
func (e *Evaluator) HarmonicSize() int { return NumHarmonics(e.degree) }

// Values receives the basis of one neighbor.
type Values struct {
	R      float64   // distance
	Fc     float64   // cutoff value
	Radial []float64 // T_n, len RadialSize
	Harm   []float64 // Y_lm, len HarmonicSize
}

// Grads receives the Cartesian gradients of the basis of one neighbor.
type Grads struct {
	Fc     r3.Vec   // d fc / d disp
	Radial []r3.Vec // d T_n / d disp
	Harm   []r3.Vec // d Y_lm / d disp
}

// Inside reports whether a displacement lies strictly inside the cutoff sphere.
func (e *Evaluator) Inside(d r3.Vec) bool {
	return r3.Norm2(d) < e.cutoff*e.cutoff
}

// Eval fills v for displacement d and reports whether the neighbor contributes.
//
// Neighbors at or beyond the cutoff return false and leave v untouched.
// The caller must reject zero-length displacements before calling Eval.
func (e *Evaluator) Eval(d r3.Vec, v *Values) bool {
	if !e.Inside(d) {
		return false
	}
	r := r3.Norm(d)
	v.R = r
	v.Fc, _ = Cutoff(r, e.cutoff)
	Chebyshev(2*r/e.cutoff-1, v.Radial)
	Harmonics(e.degree, r3.Scale(1/r, d), v.Harm)
	return true
}

// EvalGrad fills both v and g for displacement d.
//
// scratch must hold at least RadialSize values; it receives dT_n/ds.
func (e *Evaluator) EvalGrad(d r3.Vec, v *Values, g *Grads, scratch []float64) bool {
	if !e.Inside(d) {
		return false
	}
	r := r3.Norm(d)
	u := r3.Scale(1/r, d)
	v.R = r

	fc, dfc := Cutoff(r, e.cutoff)
	v.Fc = fc
	g.Fc = r3.Scale(dfc, u)

	s := 2*r/e.cutoff - 1
	dt := scratch[:len(v.Radial)]
	ChebyshevDeriv(s, v.Radial, dt)
	dsdr := 2 / e.cutoff
	for n := range v.Radial {
		g.Radial[n] = r3.Scale(dt[n]*dsdr, u)
	}

	HarmonicsGrad(e.degree, u, r, v.Harm, g.Harm)
	return true
}
