package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Backward is the reverse sweep of the last Forward.
//
// It accumulates g * dE/dtheta into grad and g * dE/dx into gradInput.
// Either may be nil to skip it.
func (n *Network) Backward(tr *Trace, g float64, grad *Network, gradInput []float64) error {
	if err := n.checkTrace(tr, OrderFirst); err != nil {
		return err
	}
	n.checkOutputs(grad, gradInput, "Backward")

	L := len(n.Layers)
	ybar := g * tr.de
	floats.ScaleTo(tr.hbar[L], ybar, n.Output)
	if grad != nil {
		floats.AddScaled(grad.Output, ybar, tr.h[L])
		grad.OutBias += ybar
	}

	for i := L - 1; i >= 0; i-- {
		l := &n.Layers[i]
		prev := tr.hbar[i]
		clear(prev)
		for o := 0; o < l.Out; o++ {
			zbar := tr.hbar[i+1][o] * tr.ds[i][o]
			if zbar == 0 {
				continue
			}
			if grad != nil {
				floats.AddScaled(grad.Layers[i].row(o), zbar, tr.h[i])
				grad.Layers[i].B[o] += zbar
			}
			floats.AddScaled(prev, zbar, l.row(o))
		}
	}
	if gradInput != nil {
		floats.Add(gradInput, tr.hbar[0])
	}
	return nil
}

// GradBackward differentiates S = g * (dE/dx . v), the directional derivative
// of the output along an input direction v, with respect to the parameters
// and the input.
//
// A forward tangent sweep carries v through the network,
//
//	zdot_i = W_i hdot_{i-1},  hdot_i = s'(z_i) zdot_i,  ydot = Output . hdot_L
//
// and one reverse sweep then runs through both the tangent and the primal
// chain at once. dS/dtheta is accumulated into grad and dS/dx, the
// Hessian-vector product g * H v, into gradInput. Either may be nil.
func (n *Network) GradBackward(tr *Trace, v []float64, g float64, grad *Network, gradInput []float64) error {
	if err := n.checkTrace(tr, OrderSecond); err != nil {
		return err
	}
	if len(v) != n.In() {
		panic(fmt.Sprintf("nn.Network.GradBackward: direction has %d values, want %d", len(v), n.In()))
	}
	n.checkOutputs(grad, gradInput, "GradBackward")

	L := len(n.Layers)
	copy(tr.hdot[0], v)
	for i := range n.Layers {
		l := &n.Layers[i]
		for o := 0; o < l.Out; o++ {
			zd := floats.Dot(l.row(o), tr.hdot[i])
			tr.zdot[i][o] = zd
			tr.hdot[i+1][o] = tr.ds[i][o] * zd
		}
	}
	ydot := floats.Dot(n.Output, tr.hdot[L])

	// S = g * phi'(y) * ydot
	ybar := g * tr.d2e * ydot
	ydotbar := g * tr.de
	floats.ScaleTo(tr.hbar[L], ybar, n.Output)
	floats.ScaleTo(tr.hdotbar[L], ydotbar, n.Output)
	if grad != nil {
		floats.AddScaled(grad.Output, ybar, tr.h[L])
		floats.AddScaled(grad.Output, ydotbar, tr.hdot[L])
		grad.OutBias += ybar
	}

	for i := L - 1; i >= 0; i-- {
		l := &n.Layers[i]
		hbar, hdotbar := tr.hbar[i], tr.hdotbar[i]
		clear(hbar)
		clear(hdotbar)
		for o := 0; o < l.Out; o++ {
			ds := tr.ds[i][o]
			zdotbar := tr.hdotbar[i+1][o] * ds
			zbar := tr.hdotbar[i+1][o]*tr.d2s[i][o]*tr.zdot[i][o] + tr.hbar[i+1][o]*ds
			row := l.row(o)
			if grad != nil {
				gr := grad.Layers[i].row(o)
				floats.AddScaled(gr, zdotbar, tr.hdot[i])
				floats.AddScaled(gr, zbar, tr.h[i])
				grad.Layers[i].B[o] += zbar
			}
			floats.AddScaled(hdotbar, zdotbar, row)
			floats.AddScaled(hbar, zbar, row)
		}
	}
	if gradInput != nil {
		floats.Add(gradInput, tr.hbar[0])
	}
	return nil
}

func (n *Network) checkOutputs(grad *Network, gradInput []float64, op string) {
	if grad != nil {
		n.checkShape(grad, op)
	}
	if gradInput != nil && len(gradInput) != n.In() {
		panic(fmt.Sprintf("nn.Network.%s: input gradient has %d values, want %d", op, len(gradInput), n.In()))
	}
}
