package descriptor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/basis"
)

// ErrNoTangent is returned by ForceBackward when ForceTangent has not run
// against the current force pass.
var ErrNoTangent = errors.New("descriptor: no force tangent recorded for the current force pass")

func (c *Calculator) checkForce(env Environment, fwd *ForwardCache, fc *ForceCache) error {
	c.own(fc.calc, "force")
	if err := c.check(env, fwd); err != nil {
		return err
	}
	if !fc.valid || fc.gen != fwd.gen {
		return ErrNoForce
	}
	return nil
}

// Force computes dE/dd_j for every neighbor, where gradDesc is dE/dD.
// Neighbors outside the cutoff get a zero vector. The returned slice is
// owned by fc.
//
// The caller turns the result into forces: the center atom receives +g_j
// and neighbor j receives -g_j.
func (c *Calculator) Force(env Environment, fwd *ForwardCache, gradDesc []float64, fc *ForceCache) ([]r3.Vec, error) {
	c.own(fc.calc, "force")
	if err := c.check(env, fwd); err != nil {
		return nil, err
	}
	if err := c.checkLen("descriptor gradient", len(gradDesc), c.size); err != nil {
		return nil, err
	}
	fc.reset(len(fwd.types))

	copy(fc.lambda, gradDesc)
	zero(fc.abar)
	for s := 0; s < c.slices; s++ {
		c.inv.Grad(c.slice(fwd.coef, s), c.views(gradDesc, s), c.slice(fc.abar, s))
	}

	vals := basis.Values{Radial: fc.vals[:c.nr], Harm: fc.vals[c.nr:]}
	for j, d := range fwd.disp {
		if !fwd.inside[j] {
			fc.result[j] = r3.Vec{}
			continue
		}
		grads := basis.Grads{Radial: fc.radialOf(j), Harm: fc.harmOf(j)}
		c.basis.EvalGrad(d, &vals, &grads, fc.scratch)
		fc.gradFc[j] = grads.Fc

		// grad(fc T_n) = T_n grad(fc) + fc grad(T_n)
		f, t := fwd.fc[j], fwd.radialOf(j)
		for n := range grads.Radial {
			grads.Radial[n] = r3.Add(r3.Scale(t[n], grads.Fc), r3.Scale(f, grads.Radial[n]))
		}

		fc.routes = c.mixer.Scatter(fc.abar, fwd.types[j], fwd.fuse, fc.beta, fc.routes)
		fc.result[j] = c.contract(fc.beta, f, t, fwd.harmOf(j), grads.Radial, grads.Harm)
	}

	fc.gen = fwd.gen
	fc.valid = true
	return fc.result, nil
}

// contract returns sum_{n,lm} beta[n][lm] grad(fc T_n Y_lm).
func (c *Calculator) contract(beta []float64, f float64, t, y []float64, dg, dy []r3.Vec) r3.Vec {
	var g r3.Vec
	for n := 0; n < c.nr; n++ {
		row := beta[n*c.nh : (n+1)*c.nh]
		g = r3.Add(g, r3.Scale(floats.Dot(row, y), dg[n]))
	}
	for lm := 0; lm < c.nh; lm++ {
		v := 0.0
		for n := 0; n < c.nr; n++ {
			v += beta[n*c.nh+lm] * f * t[n]
		}
		g = r3.Add(g, r3.Scale(v, dy[lm]))
	}
	return g
}

// ForceTangent starts the force-backward pass. Given gradForce, the gradient of
// a loss with respect to the per-neighbor output of Force, it computes the
// directional derivative of the descriptor
//
//	Ddot = sum_j dD/dd_j . gradForce[j]
//
// and records the per-neighbor tangents in fb. The loss gradient with respect
// to the parameters of a network N(D) then follows from the input Hessian-vector
// product of N along Ddot. The returned slice is owned by fb.
func (c *Calculator) ForceTangent(env Environment, fwd *ForwardCache, fc *ForceCache, gradForce []r3.Vec, fb *ForceBackwardCache) ([]float64, error) {
	c.own(fb.calc, "force-backward")
	if err := c.checkForce(env, fwd, fc); err != nil {
		return nil, err
	}
	if len(gradForce) != len(fwd.types) {
		return nil, fmt.Errorf("%w: %d force gradients for %d neighbors", ErrShape, len(gradForce), len(fwd.types))
	}
	fb.reset(len(fwd.types))

	for j := range fwd.types {
		if !fwd.inside[j] {
			continue
		}
		g := gradForce[j]
		p, q := fb.pOf(j), fb.qOf(j)
		for n, dg := range fc.radialOf(j) {
			p[n] = r3.Dot(g, dg)
		}
		for lm, dy := range fc.harmOf(j) {
			q[lm] = r3.Dot(g, dy)
		}
		c.tangentBlock(fwd, fb, j, fb.bdot)
		fb.routes = c.mixer.Accumulate(fb.adot, fwd.types[j], fb.bdot, fwd.fuse, fb.routes)
	}

	for s := 0; s < c.slices; s++ {
		c.inv.Tangent(c.slice(fwd.coef, s), c.slice(fb.adot, s), c.views(fb.ddot, s))
	}
	fb.gen = fwd.gen
	fb.valid = true
	return fb.ddot, nil
}

// tangentBlock writes bdot[n][lm] = p_n Y_lm + fc T_n q_lm for neighbor j.
func (c *Calculator) tangentBlock(fwd *ForwardCache, fb *ForceBackwardCache, j int, bdot []float64) {
	f, t, y := fwd.fc[j], fwd.radialOf(j), fwd.harmOf(j)
	p, q := fb.pOf(j), fb.qOf(j)
	for n := 0; n < c.nr; n++ {
		row := bdot[n*c.nh : (n+1)*c.nh]
		floats.ScaleTo(row, p[n], y)
		floats.AddScaled(row, f*t[n], q)
	}
}

// ForceBackward completes the force-backward pass for the fuse weights.
//
// mu is the gradient of the loss with respect to the descriptor at fixed
// Ddot, that is the input Hessian-vector product of the network along Ddot.
// The coefficient adjoint
//
//	Ahat = J(A)^T mu + d/dA [lambda . J(A) Adot]
//
// is stored in fb and, when gradFuse is not nil, the fuse gradient
// sum_j <Ahat[k], b_j> + <Abar[k], bdot_j> is accumulated into it.
func (c *Calculator) ForceBackward(env Environment, fwd *ForwardCache, fc *ForceCache, fb *ForceBackwardCache, mu, gradFuse []float64) error {
	c.own(fb.calc, "force-backward")
	if err := c.checkForce(env, fwd, fc); err != nil {
		return err
	}
	if !fb.valid || fb.gen != fwd.gen {
		return ErrNoTangent
	}
	if err := c.checkLen("descriptor adjoint", len(mu), c.size); err != nil {
		return err
	}

	zero(fb.ahat)
	for s := 0; s < c.slices; s++ {
		a, ahat := c.slice(fwd.coef, s), c.slice(fb.ahat, s)
		c.inv.Grad(a, c.views(mu, s), ahat)
		c.inv.SecondGrad(a, c.slice(fb.adot, s), c.views(fc.lambda, s), ahat)
	}

	if gradFuse == nil || !c.cfg.Policy.Fused() {
		return nil
	}
	if err := c.checkLen("fuse gradient", len(gradFuse), c.FuseWeights()); err != nil {
		return err
	}
	for j, t := range fwd.types {
		if !fwd.inside[j] {
			continue
		}
		fb.routes = c.mixer.FuseGrad(fb.ahat, t, fwd.blockOf(j), fwd.fuse, gradFuse, fb.routes)
		c.tangentBlock(fwd, fb, j, fb.bdot)
		fb.routes = c.mixer.FuseGrad(fc.abar, t, fb.bdot, fwd.fuse, gradFuse, fb.routes)
	}
	return nil
}
