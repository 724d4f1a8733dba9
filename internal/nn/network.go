// Package nn implements the fixed-topology energy network: fully connected
// SiLU layers followed by a linear output node, with hand-written first- and
// second-order derivative sweeps.
//
// One evaluation runs in three steps:
//
//	tr := net.NewTrace()
//	e := net.Forward(x, nn.OrderSecond, tr)
//	err := net.GradBackward(tr, v, 1, grad, mu)
//
// The trace records exactly what the requested order needs. Backward needs
// OrderFirst and GradBackward needs OrderSecond; a shallower trace is
// rejected with ErrTraceOrder.
package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Errors.
var (
	ErrTopology   = errors.New("nn: invalid network topology")
	ErrTraceOrder = errors.New("nn: trace was recorded at a lower derivative order")
	ErrNoTrace    = errors.New("nn: trace holds no forward evaluation")
	ErrParamCount = errors.New("nn: parameter vector has wrong length")
)

// Layer is one affine map followed by SiLU.
type Layer struct {
	In, Out int
	W       []float64 // row-major [Out][In]
	B       []float64 // [Out]
}

func (l *Layer) row(o int) []float64 {
	return l.W[o*l.In : (o+1)*l.In]
}

// Network is a stack of SiLU layers and a linear output node
//
//	E = phi(Output . h_L + OutBias)
//
// where phi is the identity, or B*tanh(y/B) when Bound is positive.
//
// A Network of the same shape doubles as a gradient accumulator.
type Network struct {
	Layers  []Layer
	Output  []float64
	OutBias float64
	Bound   float64
}

// NewNetwork creates a network with the given input width and hidden widths.
//
// Weights use Xavier initialization, biases start at zero.
func NewNetwork(in int, hidden []int, bound float64, rng *rand.Rand) (*Network, error) {
	if in <= 0 {
		return nil, fmt.Errorf("%w: input width %d", ErrTopology, in)
	}
	if bound < 0 {
		return nil, fmt.Errorf("%w: negative output bound %v", ErrTopology, bound)
	}
	n := &Network{Layers: make([]Layer, len(hidden)), Bound: bound}
	prev := in
	for i, width := range hidden {
		if width <= 0 {
			return nil, fmt.Errorf("%w: hidden layer %d has width %d", ErrTopology, i, width)
		}
		l := Layer{In: prev, Out: width, W: make([]float64, width*prev), B: make([]float64, width)}
		Xavier(prev, width, l.W, rng)
		n.Layers[i] = l
		prev = width
	}
	n.Output = make([]float64, prev)
	Xavier(prev, 1, n.Output, rng)
	return n, nil
}

// In returns the input width.
func (n *Network) In() int {
	if len(n.Layers) == 0 {
		return len(n.Output)
	}
	return n.Layers[0].In
}

// NumParams returns the number of trainable scalars.
func (n *Network) NumParams() int {
	p := len(n.Output) + 1
	for i := range n.Layers {
		p += len(n.Layers[i].W) + len(n.Layers[i].B)
	}
	return p
}

// Flatten appends every parameter to dst: each layer's W then B, then Output
// and OutBias.
func (n *Network) Flatten(dst []float64) []float64 {
	for i := range n.Layers {
		dst = append(dst, n.Layers[i].W...)
		dst = append(dst, n.Layers[i].B...)
	}
	dst = append(dst, n.Output...)
	return append(dst, n.OutBias)
}

// Unflatten reads parameters in Flatten order and returns the unread rest of src.
func (n *Network) Unflatten(src []float64) ([]float64, error) {
	if len(src) < n.NumParams() {
		return nil, fmt.Errorf("%w: have %d values, need %d", ErrParamCount, len(src), n.NumParams())
	}
	for i := range n.Layers {
		src = src[copy(n.Layers[i].W, src):]
		src = src[copy(n.Layers[i].B, src):]
	}
	src = src[copy(n.Output, src):]
	n.OutBias = src[0]
	return src[1:], nil
}

// Zero clears every parameter.
func (n *Network) Zero() {
	for i := range n.Layers {
		clear(n.Layers[i].W)
		clear(n.Layers[i].B)
	}
	clear(n.Output)
	n.OutBias = 0
}

// Clone returns a deep copy.
func (n *Network) Clone() *Network {
	c := &Network{
		Layers:  make([]Layer, len(n.Layers)),
		Output:  append([]float64(nil), n.Output...),
		OutBias: n.OutBias,
		Bound:   n.Bound,
	}
	for i, l := range n.Layers {
		c.Layers[i] = Layer{
			In:  l.In,
			Out: l.Out,
			W:   append([]float64(nil), l.W...),
			B:   append([]float64(nil), l.B...),
		}
	}
	return c
}

// Gradient returns a zeroed network of the same shape, for use as a
// gradient accumulator.
func (n *Network) Gradient() *Network {
	g := n.Clone()
	g.Zero()
	return g
}

// AddScaled performs n += alpha * o. The networks must have the same shape.
func (n *Network) AddScaled(alpha float64, o *Network) {
	n.checkShape(o, "AddScaled")
	for i := range n.Layers {
		floats.AddScaled(n.Layers[i].W, alpha, o.Layers[i].W)
		floats.AddScaled(n.Layers[i].B, alpha, o.Layers[i].B)
	}
	floats.AddScaled(n.Output, alpha, o.Output)
	n.OutBias += alpha * o.OutBias
}

func (n *Network) checkShape(o *Network, op string) {
	if len(o.Layers) != len(n.Layers) || len(o.Output) != len(n.Output) {
		panic(fmt.Sprintf("nn.Network.%s: shape mismatch", op))
	}
	for i := range n.Layers {
		if o.Layers[i].In != n.Layers[i].In || o.Layers[i].Out != n.Layers[i].Out {
			panic(fmt.Sprintf("nn.Network.%s: layer %d is %dx%d, want %dx%d",
				op, i, o.Layers[i].Out, o.Layers[i].In, n.Layers[i].Out, n.Layers[i].In))
		}
	}
}
