package coupling

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/basis"
)

// grid is a product quadrature on the unit sphere: Gauss-Legendre in
// cos(theta) and the trapezoid rule in phi. It integrates every polynomial of
// total degree <= poly exactly.
type grid struct {
	w []float64   // weight per point
	y [][]float64 // y[Index(l,m)][point]
}

func newGrid(lmax, poly int) *grid {
	nt := poly/2 + 2
	np := poly + 2

	tx := make([]float64, nt)
	tw := make([]float64, nt)
	quad.Legendre{}.FixedLocations(tx, tw, -1, 1)

	nh := basis.NumHarmonics(lmax)
	g := &grid{
		w: make([]float64, 0, nt*np),
		y: make([][]float64, nh),
	}
	for k := range g.y {
		g.y[k] = make([]float64, 0, nt*np)
	}

	vals := make([]float64, nh)
	for i := range tx {
		st := math.Sqrt(1 - tx[i]*tx[i])
		for j := 0; j < np; j++ {
			phi := 2 * math.Pi * float64(j) / float64(np)
			sin, cos := math.Sincos(phi)
			basis.Harmonics(lmax, r3.Vec{X: st * cos, Y: st * sin, Z: tx[i]}, vals)
			g.w = append(g.w, tw[i]*2*math.Pi/float64(np))
			for k, v := range vals {
				g.y[k] = append(g.y[k], v)
			}
		}
	}
	return g
}

// pair writes w * Y_i * Y_j per point into dst.
func (g *grid) pair(i, j int, dst []float64) []float64 {
	dst = floats.MulTo(dst[:len(g.w)], g.y[i], g.y[j])
	floats.Mul(dst, g.w)
	return dst
}

func (g *grid) gaunt(i, j, k int) float64 {
	buf := make([]float64, len(g.w))
	return floats.Dot(g.pair(i, j, buf), g.y[k])
}

// partners lists the orders m3 with |m3| <= l3 that can couple m1 and m2:
// the azimuthal integral vanishes unless |m3| is |m1|+|m2| or ||m1|-|m2||.
func partners(m1, m2, l3 int) []int {
	hi, lo := abs(m1)+abs(m2), abs(abs(m1)-abs(m2))
	out := make([]int, 0, 4)
	add := func(m int) {
		if m > l3 {
			return
		}
		out = append(out, m)
		if m != 0 {
			out = append(out, -m)
		}
	}
	add(hi)
	if lo != hi {
		add(lo)
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func buildTriple(g *grid, lmax int) []Invariant {
	var out []Invariant
	buf := make([]float64, len(g.w))
	for l3 := 1; l3 <= lmax; l3++ {
		for l2 := 1; l2 <= l3; l2++ {
			for l1 := 1; l1 <= l2; l1++ {
				if (l1+l2+l3)%2 != 0 || l3 > l1+l2 {
					continue
				}
				set := termSet{}
				for m1 := -l1; m1 <= l1; m1++ {
					i1 := basis.Index(l1, m1)
					for m2 := -l2; m2 <= l2; m2++ {
						i2 := basis.Index(l2, m2)
						prod := g.pair(i1, i2, buf)
						for _, m3 := range partners(m1, m2, l3) {
							i3 := basis.Index(l3, m3)
							if c := floats.Dot(prod, g.y[i3]); math.Abs(c) > zeroTol {
								set.add([]int{i1, i2, i3}, c)
							}
						}
					}
				}
				if terms := set.terms(); len(terms) > 0 {
					out = append(out, Invariant{Order: 3, Degrees: []int{l1, l2, l3}, Terms: terms})
				}
			}
		}
	}
	return out
}

// projection is one entry of P_p(LM) = sum G(l1m1, l2m2, LM) a_i a_j.
type projection struct {
	i, j int
	g    float64
}

type coupledPair struct {
	l1, l2, L int
	byM       map[int][]projection
}

func buildQuad(g *grid, lmax int) []Invariant {
	buf := make([]float64, len(g.w))

	var pairs []coupledPair
	for l2 := 1; l2 <= lmax; l2++ {
		for l1 := 1; l1 <= l2; l1++ {
			for L := max(1, l2-l1); L <= l1+l2; L++ {
				if (l1+l2+L)%2 != 0 {
					continue
				}
				cp := coupledPair{l1: l1, l2: l2, L: L, byM: map[int][]projection{}}
				for m1 := -l1; m1 <= l1; m1++ {
					i1 := basis.Index(l1, m1)
					for m2 := -l2; m2 <= l2; m2++ {
						i2 := basis.Index(l2, m2)
						prod := g.pair(i1, i2, buf)
						for _, M := range partners(m1, m2, L) {
							if c := floats.Dot(prod, g.y[basis.Index(L, M)]); math.Abs(c) > zeroTol {
								cp.byM[M] = append(cp.byM[M], projection{i: i1, j: i2, g: c})
							}
						}
					}
				}
				pairs = append(pairs, cp)
			}
		}
	}

	var out []Invariant
	for a := range pairs {
		for b := a; b < len(pairs); b++ {
			p, q := &pairs[a], &pairs[b]
			if p.L != q.L {
				continue
			}
			set := termSet{}
			for M := -p.L; M <= p.L; M++ {
				left, right := p.byM[M], q.byM[M]
				for _, x := range left {
					for _, y := range right {
						set.add([]int{x.i, x.j, y.i, y.j}, x.g*y.g)
					}
				}
			}
			if terms := set.terms(); len(terms) > 0 {
				out = append(out, Invariant{
					Order:   4,
					Degrees: []int{p.l1, p.l2, q.l1, q.l2, p.L},
					Terms:   terms,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MaxDegree() < out[j].MaxDegree() })
	return out
}
