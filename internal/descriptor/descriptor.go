// Package descriptor turns the neighbor list of one center atom into a
// fixed-length rotation-invariant descriptor and differentiates it.
//
// The pipeline per neighbor j of type t is
//
//	b_j[n][lm] = fc(r_j) T_n(r_j) Y_lm(d_j / r_j)
//	A[c]      += w_c(t) b_j                    (channel.Mixer)
//	D          = [L2 | L3 | L4](A)             (invariant.Contractor)
//
// A Calculator is immutable and may be shared between goroutines. Every pass
// writes into a caller-owned cache, one set of caches per center atom:
//
//	Forward       -> ForwardCache
//	Backward      ForwardCache -> BackwardCache (+ fuse gradient)
//	Force         ForwardCache -> ForceCache (dE/dd_j)
//	ForceTangent  ForwardCache, ForceCache -> ForceBackwardCache (Ddot)
//	ForceBackward ForwardCache, ForceCache, ForceBackwardCache (+ fuse gradient)
//
// Derivative passes check that their inputs were produced for the same
// environment and return ErrNotForwarded, ErrStaleCache or ErrNoForce when the
// call order is violated.
package descriptor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/basis"
	"github.com/born-ml/mlip/internal/channel"
	"github.com/born-ml/mlip/internal/coupling"
	"github.com/born-ml/mlip/internal/invariant"
)

// Calculator evaluates descriptors for one configuration.
type Calculator struct {
	cfg   Config
	basis *basis.Evaluator
	mixer *channel.Mixer
	inv   *invariant.Contractor

	nr     int // radial functions
	nh     int // harmonics
	block  int // nr * nh
	slices int // channels * nr
	offset [invariant.NumFamilies]int
	size   int
}

// New validates cfg and builds a Calculator. Every error is a *ConfigError.
func New(cfg Config) (*Calculator, error) {
	ev, err := basis.NewEvaluator(cfg.Cutoff, cfg.RadialOrder, cfg.Degree)
	if err != nil {
		switch {
		case errors.Is(err, basis.ErrCutoff):
			return nil, &ConfigError{Field: "cutoff", Value: cfg.Cutoff, Err: err}
		case errors.Is(err, basis.ErrRadialOrder):
			return nil, &ConfigError{Field: "radial_order", Value: cfg.RadialOrder, Err: err}
		default:
			return nil, &ConfigError{Field: "degree", Value: cfg.Degree, Err: err}
		}
	}
	if cfg.Radial != RadialSquare && cfg.Radial != RadialNone {
		return nil, &ConfigError{Field: "radial", Value: int(cfg.Radial), Details: "unknown radial mode"}
	}
	if err := checkTableDegree("triple_degree", cfg.TripleDegree, cfg.Degree, coupling.MaxTripleDegree); err != nil {
		return nil, err
	}
	if err := checkTableDegree("quad_degree", cfg.QuadDegree, cfg.Degree, coupling.MaxQuadDegree); err != nil {
		return nil, err
	}

	nr, nh := ev.RadialSize(), ev.HarmonicSize()
	mixer, err := channel.NewMixer(cfg.Policy, cfg.NumTypes, cfg.FuseSize, nr*nh)
	if err != nil {
		switch {
		case errors.Is(err, channel.ErrTypes):
			return nil, &ConfigError{Field: "num_types", Value: cfg.NumTypes, Err: err}
		case errors.Is(err, channel.ErrFuseSize):
			return nil, &ConfigError{Field: "fuse_size", Value: cfg.FuseSize, Details: cfg.Policy.String(), Err: err}
		default:
			return nil, &ConfigError{Field: "policy", Value: int(cfg.Policy), Err: err}
		}
	}

	inv, err := invariant.New(invariant.Config{
		Degree:       cfg.Degree,
		TripleDegree: cfg.TripleDegree,
		QuadDegree:   cfg.QuadDegree,
		Radial:       cfg.Radial == RadialSquare,
	})
	if err != nil {
		return nil, &ConfigError{Field: "degree", Value: cfg.Degree, Err: err}
	}

	c := &Calculator{
		cfg:    cfg,
		basis:  ev,
		mixer:  mixer,
		inv:    inv,
		nr:     nr,
		nh:     nh,
		block:  nr * nh,
		slices: mixer.Channels() * nr,
	}
	for f := invariant.Family(0); f < invariant.NumFamilies; f++ {
		c.offset[f] = c.size
		c.size += c.slices * inv.Size(f)
	}
	return c, nil
}

func checkTableDegree(field string, v, degree, ceiling int) error {
	switch {
	case v < 0:
		return &ConfigError{Field: field, Value: v, Details: "must not be negative"}
	case v > ceiling:
		return &ConfigError{Field: field, Value: v, Details: fmt.Sprintf("tables cover up to %d", ceiling), Err: coupling.ErrTableDegree}
	case v > degree:
		return &ConfigError{Field: field, Value: v, Details: fmt.Sprintf("above harmonic degree %d", degree), Err: coupling.ErrTableDegree}
	}
	return nil
}

// Config returns the configuration the Calculator was built from.
func (c *Calculator) Config() Config { return c.cfg }

// Len returns the descriptor length.
func (c *Calculator) Len() int { return c.size }

// Channels returns the number of channels of the coefficient tensor.
func (c *Calculator) Channels() int { return c.mixer.Channels() }

// FuseWeights returns the number of learned fuse weights (zero for fixed policies).
func (c *Calculator) FuseWeights() int { return c.mixer.FuseWeights() }

// Family returns the offset and length of one invariant block in the descriptor.
func (c *Calculator) Family(f invariant.Family) (offset, length int) {
	return c.offset[f], c.slices * c.inv.Size(f)
}

// slice returns coefficient slice s = channel*nr + n of a tensor.
func (c *Calculator) slice(t []float64, s int) []float64 {
	return t[s*c.nh : (s+1)*c.nh]
}

// views addresses the invariants of slice s inside a descriptor-shaped vector.
func (c *Calculator) views(d []float64, s int) invariant.Blocks {
	var b invariant.Blocks
	for f := invariant.Family(0); f < invariant.NumFamilies; f++ {
		n := c.inv.Size(f)
		start := c.offset[f] + s*n
		b[f] = d[start : start+n]
	}
	return b
}

func (c *Calculator) own(calc *Calculator, what string) {
	if calc != c {
		panic(fmt.Sprintf("descriptor.Calculator: %s cache belongs to another calculator", what))
	}
}

func (c *Calculator) checkLen(what string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %s has %d values, want %d", ErrShape, what, got, want)
	}
	return nil
}

// Check reports whether fwd holds a forward pass over env.
func (c *Calculator) Check(env Environment, fwd *ForwardCache) error {
	return c.check(env, fwd)
}

func (c *Calculator) check(env Environment, fwd *ForwardCache) error {
	c.own(fwd.calc, "forward")
	if !fwd.valid {
		return ErrNotForwarded
	}
	if !fwd.matches(env) {
		return ErrStaleCache
	}
	return nil
}

// Forward computes the descriptor of env into fwd. fuse holds the learned
// channel weights and must be empty for policies without them.
//
// On error the cache is left invalid.
func (c *Calculator) Forward(env Environment, fuse []float64, fwd *ForwardCache) error {
	c.own(fwd.calc, "forward")
	if err := c.checkLen("fuse weights", len(fuse), c.FuseWeights()); err != nil {
		fwd.valid = false
		return err
	}
	fwd.reset(env, fuse)

	for j, nb := range env.Neighbors {
		if nb.Type < 0 || nb.Type >= c.cfg.NumTypes {
			return fmt.Errorf("%w: neighbor %d has type %d, want 0..%d", ErrNeighborType, j, nb.Type, c.cfg.NumTypes-1)
		}
		if r3.Norm2(nb.Disp) == 0 {
			return fmt.Errorf("%w: neighbor %d", ErrCoincident, j)
		}
		v := basis.Values{Radial: fwd.radialOf(j), Harm: fwd.harmOf(j)}
		if !c.basis.Eval(nb.Disp, &v) {
			fwd.inside[j] = false
			continue
		}
		fwd.inside[j] = true
		fwd.fc[j] = v.Fc

		b := fwd.blockOf(j)
		for n, t := range v.Radial {
			floats.ScaleTo(b[n*c.nh:(n+1)*c.nh], v.Fc*t, v.Harm)
		}
		fwd.routes = c.mixer.Accumulate(fwd.coef, nb.Type, b, fwd.fuse, fwd.routes)
	}

	for s := 0; s < c.slices; s++ {
		c.inv.Eval(c.slice(fwd.coef, s), c.views(fwd.desc, s))
	}
	fwd.gen = nextGeneration()
	fwd.valid = true
	return nil
}

// Backward propagates gradDesc, the gradient of a scalar with respect to the
// descriptor, onto the coefficient tensor (stored in bc) and, when gradFuse is
// not nil, accumulates the gradient with respect to the fuse weights into it.
func (c *Calculator) Backward(env Environment, fwd *ForwardCache, gradDesc []float64, bc *BackwardCache, gradFuse []float64) error {
	c.own(bc.calc, "backward")
	if err := c.check(env, fwd); err != nil {
		return err
	}
	if err := c.checkLen("descriptor gradient", len(gradDesc), c.size); err != nil {
		return err
	}

	zero(bc.abar)
	for s := 0; s < c.slices; s++ {
		c.inv.Grad(c.slice(fwd.coef, s), c.views(gradDesc, s), c.slice(bc.abar, s))
	}
	bc.gen = fwd.gen

	if gradFuse == nil || !c.cfg.Policy.Fused() {
		return nil
	}
	if err := c.checkLen("fuse gradient", len(gradFuse), c.FuseWeights()); err != nil {
		return err
	}
	for j := range fwd.types {
		if fwd.inside[j] {
			fwd.routes = c.mixer.FuseGrad(bc.abar, fwd.types[j], fwd.blockOf(j), fwd.fuse, gradFuse, fwd.routes)
		}
	}
	return nil
}
