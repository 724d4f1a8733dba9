package nn

import "math"

// silu returns s(z) = z * sigmoid(z) and its first two derivatives.
//
// All three come from one sigmoid evaluation:
//
//	s'(z)  = sigmoid(z) * (1 + z * (1 - sigmoid(z)))
//	s''(z) = sigmoid(z) * (1 - sigmoid(z)) * (2 + z * (1 - 2*sigmoid(z)))
func silu(z float64) (s, ds, d2s float64) {
	sig := 1.0 / (1.0 + math.Exp(-z))
	s = z * sig
	ds = sig * (1 + z*(1-sig))
	d2s = sig * (1 - sig) * (2 + z*(1-2*sig))
	return s, ds, d2s
}

// bounded applies the optional output squashing E = B * tanh(y / B).
// A zero bound leaves y unchanged.
func bounded(y, bound float64) (e, de, d2e float64) {
	if bound == 0 {
		return y, 1, 0
	}
	t := math.Tanh(y / bound)
	de = 1 - t*t
	return bound * t, de, -2 * t * de / bound
}
