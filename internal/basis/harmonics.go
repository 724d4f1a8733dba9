package basis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// polarEps is the horizontal magnitude below which a unit vector is treated
// as lying on the polar axis.
const polarEps = 1e-14

// harmNorm[Index(l, m)] holds the orthonormalization constant of Y_lm for m >= 0.
// Negative m shares the constant of |m|.
var harmNorm = buildHarmNorm(MaxDegree)

func buildHarmNorm(lmax int) []float64 {
	norm := make([]float64, NumHarmonics(lmax))
	for l := 0; l <= lmax; l++ {
		base := float64(2*l+1) / (4 * math.Pi)
		norm[Index(l, 0)] = math.Sqrt(base)
		for m := 1; m <= l; m++ {
			// (l-m)!/(l+m)!
			ratio := 1.0
			for k := l - m + 1; k <= l+m; k++ {
				ratio /= float64(k)
			}
			norm[Index(l, m)] = math.Sqrt(2 * base * ratio)
		}
	}
	return norm
}

// legendre holds the associated Legendre values with the (1-z^2)^{m/2}
// factor removed, indexed [l][m].
type legendre struct {
	q  [MaxDegree + 1][MaxDegree + 1]float64
	dq [MaxDegree + 1][MaxDegree + 1]float64
}

func (p *legendre) fill(lmax int, z float64, deriv bool) {
	// Q_m^m = (2m-1)!!
	dfact := 1.0
	for m := 0; m <= lmax; m++ {
		if m > 0 {
			dfact *= float64(2*m - 1)
		}
		p.q[m][m] = dfact
		p.dq[m][m] = 0
		if m+1 <= lmax {
			p.q[m+1][m] = float64(2*m+1) * z * dfact
			p.dq[m+1][m] = float64(2*m+1) * dfact
		}
		for l := m + 2; l <= lmax; l++ {
			a := float64(2*l - 1)
			b := float64(l + m - 1)
			inv := 1 / float64(l-m)
			p.q[l][m] = (a*z*p.q[l-1][m] - b*p.q[l-2][m]) * inv
			if deriv {
				p.dq[l][m] = (a*(p.q[l-1][m]+z*p.dq[l-1][m]) - b*p.dq[l-2][m]) * inv
			}
		}
	}
}

// azimuth holds A_m + i B_m = (x + i y)^m for a unit vector, which is the
// cos/sin multiple-angle recursion scaled by sin^m(theta).
type azimuth struct {
	a [MaxDegree + 1]float64
	b [MaxDegree + 1]float64
}

func (az *azimuth) fill(lmax int, x, y float64) {
	az.a[0], az.b[0] = 1, 0
	for m := 1; m <= lmax; m++ {
		az.a[m] = x*az.a[m-1] - y*az.b[m-1]
		az.b[m] = x*az.b[m-1] + y*az.a[m-1]
	}
}

func checkDegree(lmax, n int, caller string) {
	if lmax < 0 || lmax > MaxDegree {
		panic(fmt.Sprintf("%s: degree %d outside 0..%d", caller, lmax, MaxDegree))
	}
	if n < NumHarmonics(lmax) {
		panic(fmt.Sprintf("%s: buffer holds %d values, need %d", caller, n, NumHarmonics(lmax)))
	}
}

// horizontal returns the in-plane components of u, snapped to zero on the polar axis.
func horizontal(u r3.Vec) (x, y float64, polar bool) {
	if math.Hypot(u.X, u.Y) < polarEps {
		return 0, 0, true
	}
	return u.X, u.Y, false
}

// Harmonics fills y with the real spherical harmonics Y_lm(u) for l <= lmax.
//
// u must be a unit vector.
func Harmonics(lmax int, u r3.Vec, y []float64) {
	checkDegree(lmax, len(y), "basis.Harmonics")
	x, yy, _ := horizontal(u)

	var p legendre
	var az azimuth
	p.fill(lmax, u.Z, false)
	az.fill(lmax, x, yy)

	for l := 0; l <= lmax; l++ {
		y[Index(l, 0)] = harmNorm[Index(l, 0)] * p.q[l][0]
		for m := 1; m <= l; m++ {
			c := harmNorm[Index(l, m)] * p.q[l][m]
			y[Index(l, m)] = c * az.a[m]
			y[Index(l, -m)] = c * az.b[m]
		}
	}
}

// HarmonicsGrad fills y with Y_lm(u) and dy with the gradients of Y_lm with
// respect to the displacement r*u.
//
// The harmonics are polynomials in the unit-vector components, so the
// gradient is taken over those components and projected onto the tangent
// plane of the sphere. On the polar axis the azimuthal factors of order
// m >= 1 are exactly zero and only the m = 1 azimuthal derivative survives.
func HarmonicsGrad(lmax int, u r3.Vec, r float64, y []float64, dy []r3.Vec) {
	checkDegree(lmax, len(y), "basis.HarmonicsGrad")
	if len(dy) < NumHarmonics(lmax) {
		panic(fmt.Sprintf("basis.HarmonicsGrad: gradient buffer holds %d values, need %d", len(dy), NumHarmonics(lmax)))
	}
	x, yy, polar := horizontal(u)
	if polar {
		u = r3.Vec{Z: math.Copysign(1, u.Z)}
	}

	var p legendre
	var az azimuth
	p.fill(lmax, u.Z, true)
	az.fill(lmax, x, yy)

	invR := 1 / r
	project := func(g r3.Vec) r3.Vec {
		return r3.Scale(invR, r3.Sub(g, r3.Scale(r3.Dot(g, u), u)))
	}

	for l := 0; l <= lmax; l++ {
		c0 := harmNorm[Index(l, 0)]
		y[Index(l, 0)] = c0 * p.q[l][0]
		dy[Index(l, 0)] = project(r3.Vec{Z: c0 * p.dq[l][0]})

		for m := 1; m <= l; m++ {
			c := harmNorm[Index(l, m)]
			q := c * p.q[l][m]
			dq := c * p.dq[l][m]
			fm := float64(m)

			y[Index(l, m)] = q * az.a[m]
			y[Index(l, -m)] = q * az.b[m]

			dy[Index(l, m)] = project(r3.Vec{
				X: q * fm * az.a[m-1],
				Y: -q * fm * az.b[m-1],
				Z: dq * az.a[m],
			})
			dy[Index(l, -m)] = project(r3.Vec{
				X: q * fm * az.b[m-1],
				Y: q * fm * az.a[m-1],
				Z: dq * az.b[m],
			})
		}
	}
}
