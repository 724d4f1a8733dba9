// Package coupling builds the process-wide constant tables behind the
// rotation-invariant contractions.
//
// Every invariant is a sparse polynomial in the coefficients a_lm of one
// channel slice:
//
//	B = sum_t C_t * a[I_t[0]] * ... * a[I_t[order-1]]
//
// Pairwise invariants are the normalized power spectrum per degree. Triple
// and quadruple invariants contract products of harmonics with real Gaunt
// coefficients
//
//	G(l1m1, l2m2, l3m3) = integral over the sphere of Y_l1m1 Y_l2m2 Y_l3m3
//
// which are computed once by exact quadrature over the same harmonic
// evaluator used at run time. The tables never change after construction
// and may be read concurrently.
package coupling

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/born-ml/mlip/internal/basis"
)

// Table ceilings. The Gaunt grid is sized for these degrees.
const (
	MaxTripleDegree = 6
	MaxQuadDegree   = 4
)

// zeroTol drops coefficients that vanish by symmetry.
const zeroTol = 1e-12

// ErrTableDegree is returned when a requested degree exceeds the precomputed tables.
var ErrTableDegree = errors.New("coupling: degree exceeds precomputed coupling tables")

// Term is one product of coefficients. Only the first Order entries of I are used.
type Term struct {
	I [4]int
	C float64
}

// Invariant is one rotation-invariant polynomial of fixed order.
type Invariant struct {
	Order   int
	Degrees []int // l values, plus the intermediate degree for quadruples
	Terms   []Term
}

// MaxDegree returns the highest harmonic degree the invariant reads.
func (inv *Invariant) MaxDegree() int {
	m := 0
	n := len(inv.Degrees)
	if inv.Order == 4 {
		n-- // the intermediate degree is not read from the slice
	}
	for _, l := range inv.Degrees[:n] {
		m = max(m, l)
	}
	return m
}

type tables struct {
	triple []Invariant
	quad   []Invariant
}

var (
	once   sync.Once
	global tables
)

func load() *tables {
	once.Do(func() {
		g := newGrid(max(MaxTripleDegree, 2*MaxQuadDegree), 3*MaxTripleDegree)
		global.triple = buildTriple(g, MaxTripleDegree)
		global.quad = buildQuad(g, MaxQuadDegree)
	})
	return &global
}

// Pairwise returns the power-spectrum invariants q_l = 4pi/(2l+1) sum_m a_lm^2
// for l = 0..lmax, or l = 1..lmax when withRadial is false.
//
// The degree-0 entry is the plain square of the radial sum.
func Pairwise(lmax int, withRadial bool) ([]Invariant, error) {
	if lmax < 0 || lmax > basis.MaxDegree {
		return nil, fmt.Errorf("%w: pairwise degree %d, supported 0..%d", ErrTableDegree, lmax, basis.MaxDegree)
	}
	l0 := 1
	if withRadial {
		l0 = 0
	}
	out := make([]Invariant, 0, lmax+1-l0)
	for l := l0; l <= lmax; l++ {
		c := 4 * math.Pi / float64(2*l+1)
		inv := Invariant{Order: 2, Degrees: []int{l}, Terms: make([]Term, 0, 2*l+1)}
		for m := -l; m <= l; m++ {
			i := basis.Index(l, m)
			inv.Terms = append(inv.Terms, Term{I: [4]int{i, i, -1, -1}, C: c})
		}
		out = append(out, inv)
	}
	return out, nil
}

// Triple returns the triple invariants with all degrees in 1..lmax.
// A zero lmax selects none.
func Triple(lmax int) ([]Invariant, error) {
	if lmax < 0 || lmax > MaxTripleDegree {
		return nil, fmt.Errorf("%w: triple degree %d, supported 0..%d", ErrTableDegree, lmax, MaxTripleDegree)
	}
	return prefix(load().triple, lmax), nil
}

// Quadruple returns the quadruple invariants with all degrees in 1..lmax.
// A zero lmax selects none.
func Quadruple(lmax int) ([]Invariant, error) {
	if lmax < 0 || lmax > MaxQuadDegree {
		return nil, fmt.Errorf("%w: quadruple degree %d, supported 0..%d", ErrTableDegree, lmax, MaxQuadDegree)
	}
	return prefix(load().quad, lmax), nil
}

// prefix relies on tables being ordered by MaxDegree.
func prefix(all []Invariant, lmax int) []Invariant {
	n := sort.Search(len(all), func(i int) bool { return all[i].MaxDegree() > lmax })
	return all[:n:n]
}

// Gaunt returns the real Gaunt coefficient for three harmonics of degree at
// most 2*MaxQuadDegree. It is intended for inspection and tests.
func Gaunt(l1, m1, l2, m2, l3, m3 int) float64 {
	g := newGrid(max(l1, l2, l3), l1+l2+l3)
	return g.gaunt(basis.Index(l1, m1), basis.Index(l2, m2), basis.Index(l3, m3))
}

// termSet merges terms with the same multiset of indices.
type termSet map[[4]int]float64

func (s termSet) add(idx []int, c float64) {
	var key [4]int
	for i := range key {
		key[i] = -1
	}
	copy(key[:], idx)
	sort.Ints(key[:len(idx)])
	s[key] += c
}

func (s termSet) terms() []Term {
	out := make([]Term, 0, len(s))
	for k, c := range s {
		if math.Abs(c) > zeroTol {
			out = append(out, Term{I: k, C: c})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		for i := 0; i < 4; i++ {
			if out[a].I[i] != out[b].I[i] {
				return out[a].I[i] < out[b].I[i]
			}
		}
		return false
	})
	return out
}
