package nn

import (
	"math"
	"math/rand"
)

// Xavier fills w with values drawn from the Xavier (Glorot) uniform distribution
//
//	U(-sqrt(6/(fanIn + fanOut)), sqrt(6/(fanIn + fanOut)))
//
// which keeps the variance of activations roughly constant across layers.
func Xavier(fanIn, fanOut int, w []float64, rng *rand.Rand) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
}
