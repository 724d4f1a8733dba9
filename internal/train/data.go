// Package train fits engine parameters to reference atomic energies and
// energy gradients.
//
// The loss over a dataset of N center atoms is
//
//	L = (1/N) sum_i [ wE (E_i - E_i^ref)^2 + wF sum_j |g_ij - g_ij^ref|^2 ]
//
// where g_ij = dE_i/dd_ij. Its parameter gradient needs Backward for the
// energy term and Force followed by BackwardForce for the force term.
package train

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/basis"
	"github.com/born-ml/mlip/internal/descriptor"
)

// ErrSample is returned for a sample whose targets do not match its environment.
var ErrSample = errors.New("train: malformed sample")

// Sample is one center atom with its reference values.
type Sample struct {
	Env       descriptor.Environment
	Energy    float64
	Gradients []r3.Vec // dE/dd_j per neighbor, nil to skip the force term
}

func (s *Sample) check(numTypes int) error {
	if s.Gradients != nil && len(s.Gradients) != len(s.Env.Neighbors) {
		return fmt.Errorf("%w: %d gradients for %d neighbors", ErrSample, len(s.Gradients), len(s.Env.Neighbors))
	}
	if s.Env.CenterType < 0 || s.Env.CenterType >= numTypes {
		return fmt.Errorf("%w: center type %d", ErrSample, s.Env.CenterType)
	}
	return nil
}

// Morse is a pair potential
//
//	phi(r) = Depth (e^{-2a(r-R0)} - 2 e^{-a(r-R0)}) fc(r),  a = Width
//
// smoothly switched off at Cutoff by the same cutoff function the
// descriptor uses.
type Morse struct {
	Depth  float64
	Width  float64
	R0     float64
	Cutoff float64
}

// Eval returns phi(r) and dphi/dr.
func (m Morse) Eval(r float64) (phi, dphi float64) {
	fc, dfc := basis.Cutoff(r, m.Cutoff)
	if fc == 0 {
		return 0, 0
	}
	x := math.Exp(-m.Width * (r - m.R0))
	v := m.Depth * (x*x - 2*x)
	dv := m.Depth * (-2*m.Width*x*x + 2*m.Width*x)
	return v * fc, dv*fc + v*dfc
}

// PairModel assigns a Morse potential to every unordered type pair.
type PairModel struct {
	NumTypes int
	Pairs    []Morse // [a*NumTypes+b], symmetric
}

// NewPairModel builds a model whose well depth and position vary with the
// type pair.
func NewPairModel(numTypes int, cutoff float64) *PairModel {
	pm := &PairModel{NumTypes: numTypes, Pairs: make([]Morse, numTypes*numTypes)}
	for a := 0; a < numTypes; a++ {
		for b := a; b < numTypes; b++ {
			m := Morse{
				Depth:  0.5 + 0.25*float64(a+b),
				Width:  1.5,
				R0:     0.35*cutoff + 0.05*cutoff*float64(a+b),
				Cutoff: cutoff,
			}
			pm.Pairs[a*numTypes+b] = m
			pm.Pairs[b*numTypes+a] = m
		}
	}
	return pm
}

// Label fills the energy and gradients of s. Each pair is shared equally
// by its two atoms, so E_i = 1/2 sum_j phi(r_ij) and
// dE_i/dd_ij = 1/2 phi'(r) d/r.
func (pm *PairModel) Label(s *Sample) {
	s.Energy = 0
	s.Gradients = make([]r3.Vec, len(s.Env.Neighbors))
	for j, nb := range s.Env.Neighbors {
		r := r3.Norm(nb.Disp)
		phi, dphi := pm.Pairs[s.Env.CenterType*pm.NumTypes+nb.Type].Eval(r)
		s.Energy += 0.5 * phi
		s.Gradients[j] = r3.Scale(0.5*dphi/r, nb.Disp)
	}
}

// SyntheticConfig describes a random dataset.
type SyntheticConfig struct {
	Samples      int
	MinNeighbors int
	MaxNeighbors int
	NumTypes     int
	Cutoff       float64
	// MinDistance keeps neighbors off the repulsive core.
	MinDistance float64
}

// Synthetic draws random environments and labels them with pm. Neighbor
// distances are uniform in [MinDistance, Cutoff) and directions isotropic.
func Synthetic(cfg SyntheticConfig, pm *PairModel, rng *rand.Rand) []Sample {
	out := make([]Sample, cfg.Samples)
	for i := range out {
		n := cfg.MinNeighbors
		if cfg.MaxNeighbors > n {
			n += rng.Intn(cfg.MaxNeighbors - n + 1)
		}
		env := descriptor.Environment{CenterType: rng.Intn(cfg.NumTypes), Neighbors: make([]descriptor.Neighbor, n)}
		for j := range env.Neighbors {
			dir := r3.Unit(r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})
			r := cfg.MinDistance + (cfg.Cutoff-cfg.MinDistance)*rng.Float64()
			env.Neighbors[j] = descriptor.Neighbor{Disp: r3.Scale(r, dir), Type: rng.Intn(cfg.NumTypes)}
		}
		out[i].Env = env
		pm.Label(&out[i])
	}
	return out
}
