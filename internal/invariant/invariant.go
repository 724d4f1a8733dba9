// Package invariant contracts one channel slice of the coefficient tensor
// into rotation-invariant scalars and differentiates that contraction.
//
// A Contractor owns three families of invariants (pairwise, triple,
// quadruple) taken from the coupling tables and supports four operations
// over a slice a of harmonic coefficients:
//
//	Eval:       B(a)
//	Grad:       abar += J(a)^T g                 (vector-Jacobian product)
//	Tangent:    Bdot  = J(a) adot                (Jacobian-vector product)
//	SecondGrad: abar += (d/da [g . J(a) adot])   (second-order adjoint)
//
// Every invariant is a sparse polynomial, so all four reduce to loops over
// the same term lists.
package invariant

import (
	"fmt"

	"github.com/born-ml/mlip/internal/basis"
	"github.com/born-ml/mlip/internal/coupling"
)

// Family identifies one block of the descriptor.
type Family int

// Families in descriptor order.
const (
	Pairwise Family = iota
	Triple
	Quadruple
	NumFamilies
)

// String returns the conventional block label.
func (f Family) String() string {
	switch f {
	case Pairwise:
		return "L2"
	case Triple:
		return "L3"
	case Quadruple:
		return "L4"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Blocks addresses one output (or adjoint) region per family.
type Blocks [NumFamilies][]float64

// Contractor evaluates the invariant families of one configuration.
// It is immutable and safe for concurrent use.
type Contractor struct {
	degree   int
	families [NumFamilies][]coupling.Invariant
}

// Config selects the invariant families.
type Config struct {
	Degree       int  // highest harmonic degree in the slice
	TripleDegree int  // 0 disables triple invariants
	QuadDegree   int  // 0 disables quadruple invariants
	Radial       bool // include the degree-0 pairwise term
}

// New builds a Contractor, rejecting degrees the coupling tables cannot serve.
func New(cfg Config) (*Contractor, error) {
	if cfg.TripleDegree > cfg.Degree {
		return nil, fmt.Errorf("%w: triple degree %d above harmonic degree %d",
			coupling.ErrTableDegree, cfg.TripleDegree, cfg.Degree)
	}
	if cfg.QuadDegree > cfg.Degree {
		return nil, fmt.Errorf("%w: quadruple degree %d above harmonic degree %d",
			coupling.ErrTableDegree, cfg.QuadDegree, cfg.Degree)
	}
	pw, err := coupling.Pairwise(cfg.Degree, cfg.Radial)
	if err != nil {
		return nil, err
	}
	tr, err := coupling.Triple(cfg.TripleDegree)
	if err != nil {
		return nil, err
	}
	qd, err := coupling.Quadruple(cfg.QuadDegree)
	if err != nil {
		return nil, err
	}
	return &Contractor{
		degree:   cfg.Degree,
		families: [NumFamilies][]coupling.Invariant{pw, tr, qd},
	}, nil
}

// SliceLen returns the number of coefficients in one slice.
func (c *Contractor) SliceLen() int {
	return basis.NumHarmonics(c.degree)
}

// Size returns the number of invariants in family f.
func (c *Contractor) Size(f Family) int {
	return len(c.families[f])
}

// Invariants exposes the tables of family f.
func (c *Contractor) Invariants(f Family) []coupling.Invariant {
	return c.families[f]
}

// Total returns the number of invariants over all families.
func (c *Contractor) Total() int {
	n := 0
	for f := Family(0); f < NumFamilies; f++ {
		n += c.Size(f)
	}
	return n
}

func (c *Contractor) check(a []float64, b Blocks, op string) {
	if len(a) != c.SliceLen() {
		panic(fmt.Sprintf("invariant.Contractor.%s: slice has %d coefficients, want %d", op, len(a), c.SliceLen()))
	}
	for f := Family(0); f < NumFamilies; f++ {
		if len(b[f]) != c.Size(f) {
			panic(fmt.Sprintf("invariant.Contractor.%s: %v block has %d entries, want %d", op, f, len(b[f]), c.Size(f)))
		}
	}
}

// Eval writes every invariant of slice a into out.
func (c *Contractor) Eval(a []float64, out Blocks) {
	c.check(a, out, "Eval")
	for f := Family(0); f < NumFamilies; f++ {
		for k := range c.families[f] {
			inv := &c.families[f][k]
			sum := 0.0
			for t := range inv.Terms {
				sum += product(inv.Order, &inv.Terms[t], a)
			}
			out[f][k] = sum
		}
	}
}

// Grad accumulates the gradient of sum_k g[k]*B_k(a) with respect to a into abar.
func (c *Contractor) Grad(a []float64, g Blocks, abar []float64) {
	c.check(a, g, "Grad")
	for f := Family(0); f < NumFamilies; f++ {
		for k := range c.families[f] {
			gk := g[f][k]
			if gk == 0 {
				continue
			}
			inv := &c.families[f][k]
			for t := range inv.Terms {
				scatter(inv.Order, &inv.Terms[t], a, gk, abar)
			}
		}
	}
}

// Tangent writes the directional derivative of every invariant along adot.
func (c *Contractor) Tangent(a, adot []float64, out Blocks) {
	c.check(a, out, "Tangent")
	for f := Family(0); f < NumFamilies; f++ {
		for k := range c.families[f] {
			inv := &c.families[f][k]
			sum := 0.0
			for t := range inv.Terms {
				sum += directional(inv.Order, &inv.Terms[t], a, adot)
			}
			out[f][k] = sum
		}
	}
}

// SecondGrad accumulates d/da [sum_k g[k] * Tangent_k(a, adot)] into abar.
//
// This is the adjoint of Grad along adot and carries the gradient of a
// gradient back onto the coefficients.
func (c *Contractor) SecondGrad(a, adot []float64, g Blocks, abar []float64) {
	c.check(a, g, "SecondGrad")
	for f := Family(0); f < NumFamilies; f++ {
		for k := range c.families[f] {
			gk := g[f][k]
			if gk == 0 {
				continue
			}
			inv := &c.families[f][k]
			for t := range inv.Terms {
				scatterDirectional(inv.Order, &inv.Terms[t], a, adot, gk, abar)
			}
		}
	}
}
