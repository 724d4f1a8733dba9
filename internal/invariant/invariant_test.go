package invariant

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/mlip/internal/coupling"
)

func newBlocks(c *Contractor) Blocks {
	var b Blocks
	for f := Family(0); f < NumFamilies; f++ {
		b[f] = make([]float64, c.Size(f))
	}
	return b
}

func randomBlocks(c *Contractor, rng *rand.Rand) Blocks {
	b := newBlocks(c)
	for f := range b {
		for i := range b[f] {
			b[f][i] = rng.NormFloat64()
		}
	}
	return b
}

func randomVec(n int, rng *rand.Rand) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64() * 0.5
	}
	return v
}

func dot(a, b Blocks) float64 {
	s := 0.0
	for f := range a {
		s += floats.Dot(a[f], b[f])
	}
	return s
}

var central = &fd.Settings{Formula: fd.Central, Step: 1e-5}

func testContractor(t *testing.T) *Contractor {
	t.Helper()
	c, err := New(Config{Degree: 3, TripleDegree: 3, QuadDegree: 3, Radial: true})
	require.NoError(t, err)
	return c
}

func TestNew_RejectsDegrees(t *testing.T) {
	_, err := New(Config{Degree: 2, TripleDegree: 3})
	require.ErrorIs(t, err, coupling.ErrTableDegree)

	_, err = New(Config{Degree: 8, QuadDegree: coupling.MaxQuadDegree + 1})
	require.ErrorIs(t, err, coupling.ErrTableDegree)

	_, err = New(Config{Degree: 8, TripleDegree: coupling.MaxTripleDegree + 1})
	require.ErrorIs(t, err, coupling.ErrTableDegree)
}

func TestContractor_Sizes(t *testing.T) {
	c, err := New(Config{Degree: 2, TripleDegree: 2, QuadDegree: 2, Radial: true})
	require.NoError(t, err)
	assert.Equal(t, 9, c.SliceLen())
	assert.Equal(t, 3, c.Size(Pairwise))
	assert.Equal(t, 2, c.Size(Triple))
	assert.Equal(t, 6, c.Size(Quadruple))
	assert.Equal(t, 11, c.Total())

	c, err = New(Config{Degree: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size(Pairwise), "degree-0 term omitted")
	assert.Equal(t, 0, c.Size(Triple))
	assert.Equal(t, "L4", Quadruple.String())
}

func TestContractor_PanicsOnShape(t *testing.T) {
	c := testContractor(t)
	assert.Panics(t, func() { c.Eval(make([]float64, 3), newBlocks(c)) })
	b := newBlocks(c)
	b[Triple] = b[Triple][:1]
	assert.Panics(t, func() { c.Eval(make([]float64, c.SliceLen()), b) })
}

func TestContractor_GradMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := testContractor(t)
	a := randomVec(c.SliceLen(), rng)
	g := randomBlocks(c, rng)

	out := newBlocks(c)
	f := func(x []float64) float64 {
		c.Eval(x, out)
		return dot(g, out)
	}
	want := fd.Gradient(nil, f, a, central)

	got := make([]float64, len(a))
	c.Grad(a, g, got)
	for i := range got {
		assert.InDelta(t, want[i], got[i], 1e-7*(1+abs(want[i])), "a[%d]", i)
	}
}

func TestContractor_TangentMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	c := testContractor(t)
	a := randomVec(c.SliceLen(), rng)
	adot := randomVec(c.SliceLen(), rng)

	got := newBlocks(c)
	c.Tangent(a, adot, got)

	plus, minus := newBlocks(c), newBlocks(c)
	const h = 1e-5
	ap := make([]float64, len(a))
	am := make([]float64, len(a))
	floats.AddScaledTo(ap, a, h, adot)
	floats.AddScaledTo(am, a, -h, adot)
	c.Eval(ap, plus)
	c.Eval(am, minus)
	for f := range got {
		for k := range got[f] {
			want := (plus[f][k] - minus[f][k]) / (2 * h)
			assert.InDelta(t, want, got[f][k], 1e-7*(1+abs(want)), "%v[%d]", Family(f), k)
		}
	}

	// Tangent is the adjoint of Grad: <g, J adot> = <J^T g, adot>.
	g := randomBlocks(c, rng)
	abar := make([]float64, len(a))
	c.Grad(a, g, abar)
	assert.InDelta(t, dot(g, got), floats.Dot(abar, adot), 1e-10)
}

func TestContractor_SecondGradMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	c := testContractor(t)
	a := randomVec(c.SliceLen(), rng)
	adot := randomVec(c.SliceLen(), rng)
	g := randomBlocks(c, rng)

	tan := newBlocks(c)
	f := func(x []float64) float64 {
		c.Tangent(x, adot, tan)
		return dot(g, tan)
	}
	want := fd.Gradient(nil, f, a, central)

	got := make([]float64, len(a))
	c.SecondGrad(a, adot, g, got)
	for i := range got {
		assert.InDelta(t, want[i], got[i], 1e-7*(1+abs(want[i])), "a[%d]", i)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
