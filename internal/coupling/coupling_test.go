package coupling

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/basis"
)

func evalInvariant(inv *Invariant, a []float64) float64 {
	sum := 0.0
	for _, t := range inv.Terms {
		p := t.C
		for f := 0; f < inv.Order; f++ {
			p *= a[t.I[f]]
		}
		sum += p
	}
	return sum
}

// coefficients builds a_lm = sum_j w_j Y_lm(u_j) for a set of directions.
func coefficients(lmax int, dirs []r3.Vec, w []float64) []float64 {
	a := make([]float64, basis.NumHarmonics(lmax))
	y := make([]float64, len(a))
	for j, u := range dirs {
		basis.Harmonics(lmax, u, y)
		for k := range a {
			a[k] += w[j] * y[k]
		}
	}
	return a
}

func TestGaunt_KnownValues(t *testing.T) {
	inv4pi := 1 / math.Sqrt(4*math.Pi)
	assert.InDelta(t, inv4pi, Gaunt(0, 0, 0, 0, 0, 0), 1e-14)
	assert.InDelta(t, inv4pi, Gaunt(3, -2, 3, -2, 0, 0), 1e-13)
	assert.InDelta(t, 0, Gaunt(3, -2, 3, 2, 0, 0), 1e-13)

	// sqrt(3*3*5/(4pi)) * (1 1 2; 0 0 0)^2 with (1 1 2; 0 0 0)^2 = 2/15
	assert.InDelta(t, math.Sqrt(45/(4*math.Pi))*2/15, Gaunt(1, 0, 1, 0, 2, 0), 1e-13)

	// Odd total degree vanishes by parity.
	assert.InDelta(t, 0, Gaunt(1, 1, 1, -1, 1, 0), 1e-13)
}

func TestPartners(t *testing.T) {
	assert.ElementsMatch(t, []int{3, -3, 1, -1}, partners(1, -2, 4))
	assert.ElementsMatch(t, []int{1, -1}, partners(1, -2, 1))
	assert.ElementsMatch(t, []int{4, -4, 0}, partners(2, 2, 5))
	assert.ElementsMatch(t, []int{0}, partners(0, 0, 3))
}

func TestTables_Limits(t *testing.T) {
	_, err := Triple(MaxTripleDegree + 1)
	require.ErrorIs(t, err, ErrTableDegree)
	_, err = Quadruple(MaxQuadDegree + 1)
	require.ErrorIs(t, err, ErrTableDegree)
	_, err = Pairwise(basis.MaxDegree+1, true)
	require.ErrorIs(t, err, ErrTableDegree)

	none, err := Triple(0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTables_Counts(t *testing.T) {
	pw, err := Pairwise(2, true)
	require.NoError(t, err)
	assert.Len(t, pw, 3)
	pw, err = Pairwise(2, false)
	require.NoError(t, err)
	assert.Len(t, pw, 2)

	tr, err := Triple(2)
	require.NoError(t, err)
	require.Len(t, tr, 2)
	assert.Equal(t, []int{1, 1, 2}, tr[0].Degrees)
	assert.Equal(t, []int{2, 2, 2}, tr[1].Degrees)

	qd, err := Quadruple(2)
	require.NoError(t, err)
	assert.Len(t, qd, 6)
	for _, inv := range qd {
		assert.LessOrEqual(t, inv.MaxDegree(), 2)
		assert.Equal(t, 4, inv.Order)
	}
}

func TestTables_PrefixOrdering(t *testing.T) {
	full, err := Triple(MaxTripleDegree)
	require.NoError(t, err)
	for l := 0; l < MaxTripleDegree; l++ {
		sub, err := Triple(l)
		require.NoError(t, err)
		assert.Equal(t, full[:len(sub)], sub)
		for _, inv := range full[len(sub):] {
			assert.Greater(t, inv.MaxDegree(), l)
		}
	}

	fullQ, err := Quadruple(MaxQuadDegree)
	require.NoError(t, err)
	for i := 1; i < len(fullQ); i++ {
		assert.LessOrEqual(t, fullQ[i-1].MaxDegree(), fullQ[i].MaxDegree())
	}
}

func TestInvariants_RotationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const lmax = MaxTripleDegree

	dirs := make([]r3.Vec, 5)
	w := make([]float64, len(dirs))
	for j := range dirs {
		dirs[j] = r3.Unit(r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})
		w[j] = 0.5 + rng.Float64()
	}
	rot := r3.NewRotation(1.234, r3.Vec{X: 0.3, Y: -0.8, Z: 0.5})
	rotated := make([]r3.Vec, len(dirs))
	for j, u := range dirs {
		rotated[j] = rot.Rotate(u)
	}

	a := coefficients(lmax, dirs, w)
	b := coefficients(lmax, rotated, w)

	pw, err := Pairwise(lmax, true)
	require.NoError(t, err)
	tr, err := Triple(MaxTripleDegree)
	require.NoError(t, err)
	qd, err := Quadruple(MaxQuadDegree)
	require.NoError(t, err)

	for _, family := range [][]Invariant{pw, tr, qd} {
		for i := range family {
			va := evalInvariant(&family[i], a)
			vb := evalInvariant(&family[i], b)
			assert.InDelta(t, va, vb, 1e-10*(1+math.Abs(va)), "invariant %v", family[i].Degrees)
		}
	}

	// Not all invariants are identically zero.
	assert.NotZero(t, evalInvariant(&tr[0], a))
	assert.NotZero(t, evalInvariant(&qd[0], a))
}

func TestPairwise_MatchesLegendreSum(t *testing.T) {
	// q_l = sum_jk w_j w_k P_l(u_j . u_k) for the normalized power spectrum.
	dirs := []r3.Vec{r3.Unit(r3.Vec{X: 1, Y: 2, Z: 0.5}), r3.Unit(r3.Vec{X: -0.3, Y: 0.1, Z: 1})}
	w := []float64{0.7, 1.3}
	a := coefficients(2, dirs, w)

	pw, err := Pairwise(2, true)
	require.NoError(t, err)

	c := r3.Dot(dirs[0], dirs[1])
	p := []float64{1, c, 0.5 * (3*c*c - 1)}
	for l := 0; l <= 2; l++ {
		want := w[0]*w[0] + w[1]*w[1] + 2*w[0]*w[1]*p[l]
		assert.InDelta(t, want, evalInvariant(&pw[l], a), 1e-12, "l=%d", l)
	}
}
