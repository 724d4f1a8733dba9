package descriptor

import (
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/channel"
)

// generation stamps every forward pass so that caches derived from it can be
// matched without comparing contents.
var generation atomic.Uint64

func nextGeneration() uint64 { return generation.Add(1) }

func grow[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}

// ForwardCache holds everything the forward pass computed for one center
// atom. It is written by Calculator.Forward and read by every later pass.
type ForwardCache struct {
	calc  *Calculator
	gen   uint64
	valid bool

	// copy of the environment the cache was written for
	center int
	disp   []r3.Vec
	types  []int
	fuse   []float64

	// per neighbor
	inside []bool
	fc     []float64
	radial []float64 // [neighbor][n]
	harm   []float64 // [neighbor][lm]
	blocks []float64 // [neighbor][n][lm] = fc * T_n * Y_lm

	coef   []float64 // [channel][n][lm]
	desc   []float64
	routes []channel.Route
}

// NewForwardCache allocates a forward cache sized for c.
func (c *Calculator) NewForwardCache() *ForwardCache {
	return &ForwardCache{
		calc: c,
		fuse: make([]float64, c.FuseWeights()),
		coef: make([]float64, c.mixer.TensorLen()),
		desc: make([]float64, c.size),
	}
}

// Valid reports whether the cache holds a completed forward pass.
func (f *ForwardCache) Valid() bool { return f.valid }

// Descriptor returns the descriptor of the last forward pass. The slice is
// owned by the cache and overwritten by the next pass.
func (f *ForwardCache) Descriptor() []float64 { return f.desc }

// Coefficients returns the coefficient tensor of the last forward pass.
func (f *ForwardCache) Coefficients() []float64 { return f.coef }

// Inside reports whether neighbor j lay inside the cutoff sphere.
func (f *ForwardCache) Inside(j int) bool { return f.inside[j] }

// Invalidate discards the recorded pass.
func (f *ForwardCache) Invalidate() { f.valid = false }

func (f *ForwardCache) reset(env Environment, fuse []float64) {
	n := len(env.Neighbors)
	c := f.calc
	f.valid = false
	f.center = env.CenterType
	f.disp = grow(f.disp, n)
	f.types = grow(f.types, n)
	for j, nb := range env.Neighbors {
		f.disp[j] = nb.Disp
		f.types[j] = nb.Type
	}
	copy(f.fuse, fuse)
	f.inside = grow(f.inside, n)
	f.fc = grow(f.fc, n)
	f.radial = grow(f.radial, n*c.nr)
	f.harm = grow(f.harm, n*c.nh)
	f.blocks = grow(f.blocks, n*c.block)
	zero(f.coef)
}

func (f *ForwardCache) matches(env Environment) bool {
	if env.CenterType != f.center || len(env.Neighbors) != len(f.disp) {
		return false
	}
	for j, nb := range env.Neighbors {
		if nb.Disp != f.disp[j] || nb.Type != f.types[j] {
			return false
		}
	}
	return true
}

func (f *ForwardCache) radialOf(j int) []float64 {
	return f.radial[j*f.calc.nr : (j+1)*f.calc.nr]
}

func (f *ForwardCache) harmOf(j int) []float64 {
	return f.harm[j*f.calc.nh : (j+1)*f.calc.nh]
}

func (f *ForwardCache) blockOf(j int) []float64 {
	return f.blocks[j*f.calc.block : (j+1)*f.calc.block]
}

// BackwardCache holds the gradient of a scalar with respect to the
// coefficient tensor.
type BackwardCache struct {
	calc *Calculator
	gen  uint64
	abar []float64
}

// NewBackwardCache allocates a backward cache sized for c.
func (c *Calculator) NewBackwardCache() *BackwardCache {
	return &BackwardCache{calc: c, abar: make([]float64, c.mixer.TensorLen())}
}

// CoefGrad returns the coefficient-tensor gradient of the last backward pass.
func (b *BackwardCache) CoefGrad() []float64 { return b.abar }

// ForceCache holds the Cartesian basis derivatives of every neighbor and the
// per-neighbor energy gradient.
type ForceCache struct {
	calc  *Calculator
	gen   uint64
	valid bool

	lambda []float64 // descriptor gradient the pass was run with
	abar   []float64 // coefficient gradient

	gradFc     []r3.Vec // [neighbor]
	gradRadial []r3.Vec // [neighbor][n], gradient of fc * T_n
	gradHarm   []r3.Vec // [neighbor][lm]
	result     []r3.Vec

	vals    []float64 // radial and harmonic values from EvalGrad, discarded
	scratch []float64
	beta    []float64
	routes  []channel.Route
}

// NewForceCache allocates a force cache sized for c.
func (c *Calculator) NewForceCache() *ForceCache {
	return &ForceCache{
		calc:    c,
		lambda:  make([]float64, c.size),
		abar:    make([]float64, c.mixer.TensorLen()),
		vals:    make([]float64, c.nr+c.nh),
		scratch: make([]float64, c.nr),
		beta:    make([]float64, c.block),
	}
}

// Valid reports whether the cache holds a completed force pass.
func (f *ForceCache) Valid() bool { return f.valid }

// Gradients returns dE/dd_j of the last force pass.
func (f *ForceCache) Gradients() []r3.Vec { return f.result }

func (f *ForceCache) reset(n int) {
	c := f.calc
	f.valid = false
	f.gradFc = grow(f.gradFc, n)
	f.gradRadial = grow(f.gradRadial, n*c.nr)
	f.gradHarm = grow(f.gradHarm, n*c.nh)
	f.result = grow(f.result, n)
}

func (f *ForceCache) radialOf(j int) []r3.Vec {
	return f.gradRadial[j*f.calc.nr : (j+1)*f.calc.nr]
}

func (f *ForceCache) harmOf(j int) []r3.Vec {
	return f.gradHarm[j*f.calc.nh : (j+1)*f.calc.nh]
}

// ForceBackwardCache holds the tangent quantities of the force-backward pass.
type ForceBackwardCache struct {
	calc  *Calculator
	gen   uint64
	valid bool

	p    []float64 // [neighbor][n]  Gbar . grad(fc T_n)
	q    []float64 // [neighbor][lm] Gbar . grad(Y_lm)
	adot []float64 // coefficient tangent
	ddot []float64 // descriptor tangent
	ahat []float64 // coefficient adjoint

	bdot   []float64
	routes []channel.Route
}

// NewForceBackwardCache allocates a force-backward cache sized for c.
func (c *Calculator) NewForceBackwardCache() *ForceBackwardCache {
	return &ForceBackwardCache{
		calc: c,
		adot: make([]float64, c.mixer.TensorLen()),
		ddot: make([]float64, c.size),
		ahat: make([]float64, c.mixer.TensorLen()),
		bdot: make([]float64, c.block),
	}
}

// Tangent returns the descriptor tangent of the last ForceTangent call.
func (f *ForceBackwardCache) Tangent() []float64 { return f.ddot }

// CoefTangent returns the coefficient tangent of the last ForceTangent call.
func (f *ForceBackwardCache) CoefTangent() []float64 { return f.adot }

// CoefAdjoint returns the coefficient adjoint of the last ForceBackward call.
func (f *ForceBackwardCache) CoefAdjoint() []float64 { return f.ahat }

func (f *ForceBackwardCache) reset(n int) {
	c := f.calc
	f.valid = false
	f.p = grow(f.p, n*c.nr)
	f.q = grow(f.q, n*c.nh)
	zero(f.adot)
}

func (f *ForceBackwardCache) pOf(j int) []float64 {
	return f.p[j*f.calc.nr : (j+1)*f.calc.nr]
}

func (f *ForceBackwardCache) qOf(j int) []float64 {
	return f.q[j*f.calc.nh : (j+1)*f.calc.nh]
}
