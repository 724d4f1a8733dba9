package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

var central = &fd.Settings{Formula: fd.Central, Step: 1e-5}

func randomVec(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v
}

func testNetwork(t *testing.T, hidden []int, bound float64, seed int64) *Network {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	n, err := NewNetwork(5, hidden, bound, rng)
	require.NoError(t, err)
	// Non-zero biases exercise every term.
	for i := range n.Layers {
		for o := range n.Layers[i].B {
			n.Layers[i].B[o] = 0.3 * rng.NormFloat64()
		}
	}
	n.OutBias = 0.2
	return n
}

func assertGradClose(t *testing.T, want, got []float64, what string) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-7*(1+math.Abs(want[i])), "%s[%d]", what, i)
	}
}

func TestSiLU_Derivatives(t *testing.T) {
	for _, z := range []float64{-6, -1.5, -0.2, 0, 0.7, 3, 9} {
		s, ds, d2s := silu(z)
		assert.InDelta(t, z/(1+math.Exp(-z)), s, 1e-14)
		first := fd.Derivative(func(x float64) float64 { s, _, _ := silu(x); return s }, z, central)
		assert.InDelta(t, first, ds, 1e-7, "s'(%v)", z)
		second := fd.Derivative(func(x float64) float64 { _, d, _ := silu(x); return d }, z, central)
		assert.InDelta(t, second, d2s, 1e-7, "s''(%v)", z)
	}
}

func TestBounded_Derivatives(t *testing.T) {
	for _, y := range []float64{-4, -0.5, 0, 1.2, 6} {
		e, de, d2e := bounded(y, 2)
		assert.InDelta(t, 2*math.Tanh(y/2), e, 1e-14)
		assert.InDelta(t, fd.Derivative(func(x float64) float64 { e, _, _ := bounded(x, 2); return e }, y, central), de, 1e-7)
		assert.InDelta(t, fd.Derivative(func(x float64) float64 { _, d, _ := bounded(x, 2); return d }, y, central), d2e, 1e-7)

		e, de, d2e = bounded(y, 0)
		assert.Equal(t, [3]float64{y, 1, 0}, [3]float64{e, de, d2e})
	}
}

func TestNewNetwork(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := NewNetwork(0, []int{4}, 0, rng)
	require.ErrorIs(t, err, ErrTopology)
	_, err = NewNetwork(3, []int{4, 0}, 0, rng)
	require.ErrorIs(t, err, ErrTopology)
	_, err = NewNetwork(3, nil, -1, rng)
	require.ErrorIs(t, err, ErrTopology)

	n, err := NewNetwork(3, []int{4, 2}, 0, rng)
	require.NoError(t, err)
	assert.Equal(t, 3, n.In())
	assert.Equal(t, 3*4+4+4*2+2+2+1, n.NumParams())
	bound := math.Sqrt(6.0 / 7.0)
	for _, w := range n.Layers[0].W {
		assert.LessOrEqual(t, math.Abs(w), bound)
	}
	assert.Equal(t, make([]float64, 4), n.Layers[0].B)

	linear, err := NewNetwork(3, nil, 0, rng)
	require.NoError(t, err)
	assert.Equal(t, 3, linear.In())
	assert.Equal(t, 4, linear.NumParams())
}

func TestNetwork_FlattenRoundTrip(t *testing.T) {
	n := testNetwork(t, []int{4, 3}, 0, 2)
	flat := n.Flatten(nil)
	require.Len(t, flat, n.NumParams())

	c := n.Gradient()
	assert.Equal(t, make([]float64, n.NumParams()), c.Flatten(nil))
	rest, err := c.Unflatten(append(flat, 42))
	require.NoError(t, err)
	assert.Equal(t, []float64{42}, rest)
	assert.Equal(t, n, c)

	_, err = c.Unflatten(flat[:3])
	require.ErrorIs(t, err, ErrParamCount)

	c.AddScaled(-1, n)
	assert.Equal(t, make([]float64, n.NumParams()), c.Flatten(nil))
	assert.Panics(t, func() { c.AddScaled(1, testNetwork(t, []int{4}, 0, 2)) })
}

// energyOf evaluates a network with parameters p at x.
func energyOf(n *Network, p, x []float64) float64 {
	m := n.Clone()
	if _, err := m.Unflatten(p); err != nil {
		panic(err)
	}
	return m.Forward(x, OrderValue, m.NewTrace())
}

func TestBackward_MatchesFiniteDifference(t *testing.T) {
	for _, tc := range []struct {
		name   string
		hidden []int
		bound  float64
	}{
		{"unbounded", []int{6, 4}, 0},
		{"bounded", []int{6, 4}, 1.5},
		{"linear", nil, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(3))
			n := testNetwork(t, tc.hidden, tc.bound, 4)
			x := randomVec(rng, n.In())
			const g = 0.7

			tr := n.NewTrace()
			n.Forward(x, OrderFirst, tr)
			grad := n.Gradient()
			gradInput := make([]float64, n.In())
			require.NoError(t, n.Backward(tr, g, grad, gradInput))

			p := n.Flatten(nil)
			want := fd.Gradient(nil, func(q []float64) float64 { return g * energyOf(n, q, x) }, p, central)
			assertGradClose(t, want, grad.Flatten(nil), "param")

			wantX := fd.Gradient(nil, func(y []float64) float64 { return g * energyOf(n, p, y) }, x, central)
			assertGradClose(t, wantX, gradInput, "input")
		})
	}
}

// directional returns g * dE/dx . v through Backward.
func directional(n *Network, p, x, v []float64, g float64) float64 {
	m := n.Clone()
	if _, err := m.Unflatten(p); err != nil {
		panic(err)
	}
	tr := m.NewTrace()
	m.Forward(x, OrderFirst, tr)
	gx := make([]float64, len(x))
	if err := m.Backward(tr, g, nil, gx); err != nil {
		panic(err)
	}
	return floats.Dot(gx, v)
}

func TestGradBackward_MatchesFiniteDifference(t *testing.T) {
	for _, tc := range []struct {
		name   string
		hidden []int
		bound  float64
	}{
		{"unbounded", []int{6, 4}, 0},
		{"bounded", []int{5, 3}, 0.8},
		{"single layer", []int{7}, 0},
		{"linear", nil, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(5))
			n := testNetwork(t, tc.hidden, tc.bound, 6)
			x := randomVec(rng, n.In())
			v := randomVec(rng, n.In())
			const g = 1.3

			tr := n.NewTrace()
			n.Forward(x, OrderSecond, tr)
			grad := n.Gradient()
			mu := make([]float64, n.In())
			require.NoError(t, n.GradBackward(tr, v, g, grad, mu))

			p := n.Flatten(nil)
			want := fd.Gradient(nil, func(q []float64) float64 { return directional(n, q, x, v, g) }, p, central)
			assertGradClose(t, want, grad.Flatten(nil), "param")

			wantX := fd.Gradient(nil, func(y []float64) float64 { return directional(n, p, y, v, g) }, x, central)
			assertGradClose(t, wantX, mu, "input")
		})
	}
}

func TestTraceOrder(t *testing.T) {
	n := testNetwork(t, []int{3}, 0, 7)
	tr := n.NewTrace()
	x := make([]float64, n.In())

	require.ErrorIs(t, n.Backward(tr, 1, nil, nil), ErrNoTrace)

	n.Forward(x, OrderValue, tr)
	require.ErrorIs(t, n.Backward(tr, 1, nil, nil), ErrTraceOrder)

	n.Forward(x, OrderFirst, tr)
	require.NoError(t, n.Backward(tr, 1, nil, nil))
	require.ErrorIs(t, n.GradBackward(tr, x, 1, nil, nil), ErrTraceOrder)

	n.Forward(x, OrderSecond, tr)
	require.NoError(t, n.GradBackward(tr, x, 1, nil, nil))
	assert.Equal(t, OrderSecond, tr.Order())

	tr.Reset()
	require.ErrorIs(t, n.GradBackward(tr, x, 1, nil, nil), ErrNoTrace)

	other := testNetwork(t, []int{3}, 0, 8)
	assert.Panics(t, func() { other.Forward(x, OrderValue, tr) })
	assert.Panics(t, func() { n.Forward(x[:2], OrderValue, tr) })
}

func TestForward_OrderDoesNotChangeValue(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	n := testNetwork(t, []int{6, 4}, 1, 10)
	x := randomVec(rng, n.In())
	tr := n.NewTrace()
	e0 := n.Forward(x, OrderValue, tr)
	e2 := n.Forward(x, OrderSecond, tr)
	assert.Equal(t, e0, e2)
	assert.Equal(t, e2, tr.Value())
}
