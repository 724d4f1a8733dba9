package engine

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/descriptor"
	"github.com/born-ml/mlip/internal/nn"
)

func (e *Engine) own(ws *Workspace) {
	if ws.eng != e {
		panic("engine.Engine: workspace belongs to another engine")
	}
}

// ready checks that ws holds a Forward over env with p and supports order.
func (e *Engine) ready(env descriptor.Environment, p *Params, ws *Workspace, order Order) error {
	e.own(ws)
	if !ws.forwarded {
		return ErrNotForwarded
	}
	if p != ws.params {
		return fmt.Errorf("%w: parameters differ from the forward pass", ErrStaleCache)
	}
	if err := e.calc.Check(env, ws.fwd); err != nil {
		return err
	}
	if ws.order < order {
		return fmt.Errorf("%w: workspace allocated for %v, pass needs %v", ErrTraceOrder, ws.order, order)
	}
	return nil
}

func (e *Engine) checkGrad(grad *Params) error {
	if err := e.CheckParams(grad); err != nil {
		return fmt.Errorf("gradient: %w", err)
	}
	return nil
}

// Forward evaluates the energy of env and records everything later passes
// of the same atom need.
func (e *Engine) Forward(env descriptor.Environment, p *Params, ws *Workspace) (float64, error) {
	e.own(ws)
	ws.forwarded = false
	if err := e.CheckParams(p); err != nil {
		return 0, err
	}
	if t := env.CenterType; t < 0 || t >= e.cfg.Descriptor.NumTypes {
		return 0, fmt.Errorf("%w: %d, want 0..%d", ErrCenterType, t, e.cfg.Descriptor.NumTypes-1)
	}
	if err := e.calc.Forward(env, p.Fuse, ws.fwd); err != nil {
		return 0, err
	}
	if p != ws.params {
		clear(ws.traces)
	}
	ws.params = p
	ws.center = env.CenterType

	e.applyScale(ws.input, ws.fwd.Descriptor())
	energy := 0.0
	for _, n := range ws.networks(p) {
		energy += n.Forward(ws.input, ws.order.trace(), ws.trace(n))
	}
	ws.energy = energy
	ws.forwarded = true
	return energy, nil
}

// networkGrad writes g * dE/dD into ws.desc, accumulating parameter
// gradients into grad when it is not nil.
func (e *Engine) networkGrad(p *Params, ws *Workspace, g float64, grad *Params) error {
	clear(ws.netIn)
	for i, n := range ws.networks(p) {
		if err := n.Backward(ws.trace(n), g, gradTarget(grad, ws.center, i), ws.netIn); err != nil {
			return err
		}
	}
	e.applyScale(ws.desc, ws.netIn)
	return nil
}

func gradTarget(grad *Params, center, i int) *nn.Network {
	if grad == nil {
		return nil
	}
	return gradNetworks(grad, center)[i]
}

// Backward accumulates gradEnergy * dE/dparams into grad. With fixBasis the
// fuse weights receive no gradient.
func (e *Engine) Backward(env descriptor.Environment, p *Params, ws *Workspace, gradEnergy float64, grad *Params, fixBasis bool) error {
	if err := e.ready(env, p, ws, OrderGradient); err != nil {
		return err
	}
	if err := e.checkGrad(grad); err != nil {
		return err
	}
	if err := e.networkGrad(p, ws, gradEnergy, grad); err != nil {
		return err
	}
	var gradFuse []float64
	if !fixBasis {
		gradFuse = grad.Fuse
	}
	return e.calc.Backward(env, ws.fwd, ws.desc, ws.bwd, gradFuse)
}

// Force returns dE/dd_j for every neighbor of env. Neighbors outside the
// cutoff get a zero vector. The slice is owned by ws.
//
// Forces follow by action and reaction: the center atom receives +g_j and
// neighbor j receives -g_j.
func (e *Engine) Force(env descriptor.Environment, p *Params, ws *Workspace) ([]r3.Vec, error) {
	if err := e.ready(env, p, ws, OrderGradient); err != nil {
		return nil, err
	}
	if err := e.networkGrad(p, ws, 1, nil); err != nil {
		return nil, err
	}
	return e.calc.Force(env, ws.fwd, ws.desc, ws.force)
}

// BackwardForce accumulates into grad the parameter gradient of
//
//	L = sum_j gradForce[j] . dE/dd_j
//
// where dE/dd_j is the output of the last Force call. With fixBasis the
// fuse weights receive no gradient.
func (e *Engine) BackwardForce(env descriptor.Environment, p *Params, ws *Workspace, gradForce []r3.Vec, grad *Params, fixBasis bool) error {
	if err := e.ready(env, p, ws, OrderForce); err != nil {
		return err
	}
	if err := e.checkGrad(grad); err != nil {
		return err
	}
	ddot, err := e.calc.ForceTangent(env, ws.fwd, ws.force, gradForce, ws.fb)
	if err != nil {
		return err
	}

	// Network parameters: the gradient of dE/dx . (s * Ddot).
	e.applyScale(ws.dir, ddot)
	clear(ws.netIn)
	for i, n := range ws.networks(p) {
		if err := n.GradBackward(ws.trace(n), ws.dir, 1, gradNetworks(grad, ws.center)[i], ws.netIn); err != nil {
			return err
		}
	}

	if fixBasis || len(grad.Fuse) == 0 {
		return nil
	}
	e.applyScale(ws.desc, ws.netIn)
	return e.calc.ForceBackward(env, ws.fwd, ws.force, ws.fb, ws.desc, grad.Fuse)
}
