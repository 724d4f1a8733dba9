package invariant

import "github.com/born-ml/mlip/internal/coupling"

// The helpers below treat a term as C * prod_f a[I[f]] and differentiate it
// factor by factor. Repeated indices need no special casing: each occurrence
// is its own factor.

func product(order int, t *coupling.Term, a []float64) float64 {
	p := t.C
	for f := 0; f < order; f++ {
		p *= a[t.I[f]]
	}
	return p
}

// others returns C * prod_{g != skip1, skip2} a[I[g]].
func others(order int, t *coupling.Term, a []float64, skip1, skip2 int) float64 {
	p := t.C
	for g := 0; g < order; g++ {
		if g != skip1 && g != skip2 {
			p *= a[t.I[g]]
		}
	}
	return p
}

func scatter(order int, t *coupling.Term, a []float64, g float64, abar []float64) {
	for f := 0; f < order; f++ {
		abar[t.I[f]] += g * others(order, t, a, f, -1)
	}
}

func directional(order int, t *coupling.Term, a, adot []float64) float64 {
	sum := 0.0
	for f := 0; f < order; f++ {
		if d := adot[t.I[f]]; d != 0 {
			sum += d * others(order, t, a, f, -1)
		}
	}
	return sum
}

func scatterDirectional(order int, t *coupling.Term, a, adot []float64, g float64, abar []float64) {
	for f := 0; f < order; f++ {
		s := 0.0
		for h := 0; h < order; h++ {
			if h == f {
				continue
			}
			if d := adot[t.I[h]]; d != 0 {
				s += d * others(order, t, a, f, h)
			}
		}
		abar[t.I[f]] += g * s
	}
}
