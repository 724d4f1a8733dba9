package descriptor

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/basis"
	"github.com/born-ml/mlip/internal/channel"
	"github.com/born-ml/mlip/internal/coupling"
	"github.com/born-ml/mlip/internal/invariant"
)

func testConfig(p channel.Policy) Config {
	cfg := Config{
		Cutoff:       4,
		RadialOrder:  3,
		Degree:       3,
		TripleDegree: 3,
		QuadDegree:   2,
		NumTypes:     3,
		Policy:       p,
	}
	if p.Fused() {
		cfg.FuseSize = 2
	}
	return cfg
}

func randomEnv(rng *rand.Rand, n, numTypes int, cutoff float64) Environment {
	env := Environment{CenterType: rng.Intn(numTypes), Neighbors: make([]Neighbor, n)}
	for j := range env.Neighbors {
		dir := r3.Unit(r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})
		r := cutoff * (0.3 + 0.6*rng.Float64())
		env.Neighbors[j] = Neighbor{Disp: r3.Scale(r, dir), Type: rng.Intn(numTypes)}
	}
	return env
}

func randomRotation(rng *rand.Rand) r3.Rotation {
	axis := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	return r3.NewRotation(2*math.Pi*rng.Float64(), axis)
}

func randomFuse(rng *rand.Rand, n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 + rng.Float64()
	}
	return w
}

func forward(t *testing.T, c *Calculator, env Environment, fuse []float64) []float64 {
	t.Helper()
	fwd := c.NewForwardCache()
	require.NoError(t, c.Forward(env, fuse, fwd))
	return append([]float64(nil), fwd.Descriptor()...)
}

func assertClose(t *testing.T, want, got []float64, rel float64, msgAndArgs ...any) {
	t.Helper()
	require.Len(t, got, len(want), msgAndArgs...)
	for i := range want {
		assert.InDelta(t, want[i], got[i], rel*(1+math.Abs(want[i])), append([]any{"index %d"}, i)...)
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	base := testConfig(channel.None)
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
		target error
	}{
		{"cutoff", func(c *Config) { c.Cutoff = 0 }, "cutoff", basis.ErrCutoff},
		{"radial order", func(c *Config) { c.RadialOrder = basis.MaxRadialOrder + 1 }, "radial_order", basis.ErrRadialOrder},
		{"degree", func(c *Config) { c.Degree = basis.MaxDegree + 1 }, "degree", basis.ErrDegree},
		{"triple above tables", func(c *Config) { c.Degree = 8; c.TripleDegree = coupling.MaxTripleDegree + 1 }, "triple_degree", coupling.ErrTableDegree},
		{"triple above degree", func(c *Config) { c.TripleDegree = c.Degree + 1 }, "triple_degree", coupling.ErrTableDegree},
		{"quad above tables", func(c *Config) { c.Degree = 8; c.QuadDegree = coupling.MaxQuadDegree + 1 }, "quad_degree", coupling.ErrTableDegree},
		{"policy", func(c *Config) { c.Policy = channel.Policy(17) }, "policy", channel.ErrPolicy},
		{"types", func(c *Config) { c.NumTypes = 0 }, "num_types", channel.ErrTypes},
		{"fuse size", func(c *Config) { c.Policy = channel.Fuse }, "fuse_size", channel.ErrFuseSize},
		{"stray fuse size", func(c *Config) { c.FuseSize = 3 }, "fuse_size", channel.ErrFuseSize},
		{"radial mode", func(c *Config) { c.Radial = RadialMode(5) }, "radial", nil},
		{"negative quad", func(c *Config) { c.QuadDegree = -1 }, "quad_degree", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestCalculator_Layout(t *testing.T) {
	c, err := New(Config{Cutoff: 1, RadialOrder: 2, Degree: 2, TripleDegree: 2, QuadDegree: 2, NumTypes: 1})
	require.NoError(t, err)
	assert.Equal(t, 33, c.Len())
	for f, want := range [][2]int{{0, 9}, {9, 6}, {15, 18}} {
		off, n := c.Family(invariant.Family(f))
		assert.Equal(t, want, [2]int{off, n}, invariant.Family(f).String())
	}

	c, err = New(Config{Cutoff: 1, RadialOrder: 2, Degree: 2, TripleDegree: 2, QuadDegree: 2, NumTypes: 1, Radial: RadialNone})
	require.NoError(t, err)
	assert.Equal(t, 30, c.Len())

	c, err = New(Config{Cutoff: 1, RadialOrder: 1, Degree: 1, NumTypes: 3, Policy: channel.FuseMerged, FuseSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Channels())
	assert.Equal(t, 6, c.FuseWeights())
	assert.Equal(t, 3*2*2, c.Len())
}

func TestForward_RotationInvariant(t *testing.T) {
	policies := []channel.Policy{channel.None, channel.PerType, channel.PerTypeMerged, channel.SignedParity, channel.Fuse, channel.FuseMerged}
	rng := rand.New(rand.NewSource(11))
	for _, p := range policies {
		t.Run(p.String(), func(t *testing.T) {
			cfg := testConfig(p)
			c, err := New(cfg)
			require.NoError(t, err)
			fuse := randomFuse(rng, c.FuseWeights())
			env := randomEnv(rng, 7, cfg.NumTypes, cfg.Cutoff)

			want := forward(t, c, env, fuse)
			for k := 0; k < 3; k++ {
				got := forward(t, c, env.Rotate(randomRotation(rng)), fuse)
				assertClose(t, want, got, 1e-10)
			}
		})
	}
}

func TestForward_TranslationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	cfg := testConfig(channel.PerTypeMerged)
	c, err := New(cfg)
	require.NoError(t, err)

	center := r3.Vec{X: 0.1, Y: -0.3, Z: 0.7}
	pos := make([]r3.Vec, 6)
	types := make([]int, len(pos))
	for j := range pos {
		pos[j] = r3.Add(center, r3.Vec{X: rng.Float64() * 2, Y: rng.Float64() * 2, Z: rng.Float64()*2 + 0.2})
		types[j] = rng.Intn(cfg.NumTypes)
	}
	want := forward(t, c, FromPositions(center, 1, pos, types), nil)

	shift := r3.Vec{X: 13.5, Y: -7.25, Z: 2}
	moved := make([]r3.Vec, len(pos))
	for j := range pos {
		moved[j] = r3.Add(pos[j], shift)
	}
	got := forward(t, c, FromPositions(r3.Add(center, shift), 1, moved, types), nil)
	assertClose(t, want, got, 1e-12)
}

func TestForward_NeighborOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	cfg := testConfig(channel.Fuse)
	c, err := New(cfg)
	require.NoError(t, err)
	fuse := randomFuse(rng, c.FuseWeights())
	env := randomEnv(rng, 9, cfg.NumTypes, cfg.Cutoff)
	want := forward(t, c, env, fuse)

	perm := Environment{CenterType: env.CenterType}
	for _, j := range rng.Perm(len(env.Neighbors)) {
		perm.Neighbors = append(perm.Neighbors, env.Neighbors[j])
	}
	assertClose(t, want, forward(t, c, perm, fuse), 1e-12)
}

func TestForward_CutoffExcludesNeighbor(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	cfg := testConfig(channel.PerType)
	c, err := New(cfg)
	require.NoError(t, err)
	env := randomEnv(rng, 4, cfg.NumTypes, cfg.Cutoff)
	want := forward(t, c, env, nil)

	at := env
	at.Neighbors = append(append([]Neighbor(nil), env.Neighbors...),
		Neighbor{Disp: r3.Vec{Z: cfg.Cutoff}, Type: 0},
		Neighbor{Disp: r3.Vec{X: 3, Y: 3, Z: 3}, Type: 1})
	fwd := c.NewForwardCache()
	require.NoError(t, c.Forward(at, nil, fwd))
	assert.Equal(t, want, fwd.Descriptor(), "neighbors at or beyond the cutoff add exactly nothing")
	assert.False(t, fwd.Inside(len(at.Neighbors)-1))
	assert.False(t, fwd.Inside(len(at.Neighbors)-2))

	// Approaching the cutoff from inside the contribution vanishes smoothly.
	near := env
	near.Neighbors = append(append([]Neighbor(nil), env.Neighbors...),
		Neighbor{Disp: r3.Vec{Z: cfg.Cutoff * (1 - 1e-4)}, Type: 0})
	assertClose(t, want, forward(t, c, near, nil), 1e-9)
}

func TestForward_InputErrors(t *testing.T) {
	cfg := testConfig(channel.Fuse)
	c, err := New(cfg)
	require.NoError(t, err)
	fuse := make([]float64, c.FuseWeights())
	fwd := c.NewForwardCache()

	err = c.Forward(Environment{Neighbors: []Neighbor{{Disp: r3.Vec{}, Type: 0}}}, fuse, fwd)
	require.ErrorIs(t, err, ErrCoincident)
	assert.False(t, fwd.Valid())

	err = c.Forward(Environment{Neighbors: []Neighbor{{Disp: r3.Vec{X: 1}, Type: 3}}}, fuse, fwd)
	require.ErrorIs(t, err, ErrNeighborType)

	err = c.Forward(Environment{}, fuse[:1], fwd)
	require.ErrorIs(t, err, ErrShape)

	require.NoError(t, c.Forward(Environment{}, fuse, fwd))
	assert.True(t, floats.Equal(fwd.Descriptor(), make([]float64, c.Len())), "empty environment has a zero descriptor")

	other, err := New(testConfig(channel.None))
	require.NoError(t, err)
	assert.Panics(t, func() { _ = other.Forward(Environment{}, nil, fwd) })
}

func TestSequencingErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	cfg := testConfig(channel.FuseMerged)
	c, err := New(cfg)
	require.NoError(t, err)
	fuse := randomFuse(rng, c.FuseWeights())
	env := randomEnv(rng, 5, cfg.NumTypes, cfg.Cutoff)
	lambda := make([]float64, c.Len())

	fwd, bc, fc, fb := c.NewForwardCache(), c.NewBackwardCache(), c.NewForceCache(), c.NewForceBackwardCache()
	gradForce := make([]r3.Vec, len(env.Neighbors))

	require.ErrorIs(t, c.Backward(env, fwd, lambda, bc, nil), ErrNotForwarded)
	_, err = c.Force(env, fwd, lambda, fc)
	require.ErrorIs(t, err, ErrNotForwarded)

	require.NoError(t, c.Forward(env, fuse, fwd))
	_, err = c.ForceTangent(env, fwd, fc, gradForce, fb)
	require.ErrorIs(t, err, ErrNoForce)

	moved := env.Rotate(r3.NewRotation(0.1, r3.Vec{Z: 1}))
	require.ErrorIs(t, c.Backward(moved, fwd, lambda, bc, nil), ErrStaleCache)
	retyped := Environment{CenterType: (env.CenterType + 1) % cfg.NumTypes, Neighbors: env.Neighbors}
	require.ErrorIs(t, c.Backward(retyped, fwd, lambda, bc, nil), ErrStaleCache)

	_, err = c.Force(env, fwd, lambda, fc)
	require.NoError(t, err)
	require.ErrorIs(t, c.ForceBackward(env, fwd, fc, fb, lambda, nil), ErrNoTangent)
	_, err = c.ForceTangent(env, fwd, fc, gradForce[:1], fb)
	require.ErrorIs(t, err, ErrShape)
	_, err = c.ForceTangent(env, fwd, fc, gradForce, fb)
	require.NoError(t, err)
	require.NoError(t, c.ForceBackward(env, fwd, fc, fb, lambda, nil))

	// A new forward pass invalidates the force pass made before it.
	require.NoError(t, c.Forward(env, fuse, fwd))
	_, err = c.ForceTangent(env, fwd, fc, gradForce, fb)
	require.ErrorIs(t, err, ErrNoForce)
	require.ErrorIs(t, c.ForceBackward(env, fwd, fc, fb, lambda, nil), ErrNoForce)

	fwd.Invalidate()
	require.ErrorIs(t, c.Backward(env, fwd, lambda, bc, nil), ErrNotForwarded)
}

func TestRadialMode_Text(t *testing.T) {
	var m RadialMode
	require.NoError(t, m.UnmarshalText([]byte("none")))
	assert.Equal(t, RadialNone, m)
	b, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "none", string(b))

	err = m.UnmarshalText([]byte("cubic"))
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "radial", ce.Field)
}
