package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Order is the highest derivative a trace supports.
type Order int

// Trace orders.
const (
	OrderValue  Order = iota // value only
	OrderFirst               // adds s'(z): Backward
	OrderSecond              // adds s''(z): GradBackward
)

// String returns a short name of the order.
func (o Order) String() string {
	switch o {
	case OrderValue:
		return "value"
	case OrderFirst:
		return "first"
	case OrderSecond:
		return "second"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// Trace records one evaluation of a Network. It is sized for the network
// that created it and reused across evaluations.
type Trace struct {
	net   *Network
	order Order
	done  bool

	h   [][]float64 // h[0] is the input, h[i+1] the output of layer i
	ds  [][]float64 // s'(z) per layer
	d2s [][]float64 // s''(z) per layer

	y, e, de, d2e float64

	// reverse-sweep scratch, indexed like h
	hbar    [][]float64
	hdot    [][]float64
	hdotbar [][]float64
	zdot    [][]float64 // per layer
}

// NewTrace allocates a trace for n.
func (n *Network) NewTrace() *Trace {
	L := len(n.Layers)
	tr := &Trace{
		net:     n,
		h:       make([][]float64, L+1),
		ds:      make([][]float64, L),
		d2s:     make([][]float64, L),
		hbar:    make([][]float64, L+1),
		hdot:    make([][]float64, L+1),
		hdotbar: make([][]float64, L+1),
		zdot:    make([][]float64, L),
	}
	width := func(i int) int {
		if i == 0 {
			return n.In()
		}
		return n.Layers[i-1].Out
	}
	for i := 0; i <= L; i++ {
		w := width(i)
		tr.h[i] = make([]float64, w)
		tr.hbar[i] = make([]float64, w)
		tr.hdot[i] = make([]float64, w)
		tr.hdotbar[i] = make([]float64, w)
	}
	for i := 0; i < L; i++ {
		w := n.Layers[i].Out
		tr.ds[i] = make([]float64, w)
		tr.d2s[i] = make([]float64, w)
		tr.zdot[i] = make([]float64, w)
	}
	return tr
}

// Order returns the order of the last evaluation.
func (tr *Trace) Order() Order { return tr.order }

// Value returns the network output of the last evaluation.
func (tr *Trace) Value() float64 { return tr.e }

// Reset discards the recorded evaluation.
func (tr *Trace) Reset() { tr.done = false }

// Forward evaluates the network at x, recording the activation derivatives
// the requested order needs.
func (n *Network) Forward(x []float64, order Order, tr *Trace) float64 {
	n.own(tr, "Forward")
	if len(x) != n.In() {
		panic(fmt.Sprintf("nn.Network.Forward: input has %d values, want %d", len(x), n.In()))
	}
	copy(tr.h[0], x)
	for i := range n.Layers {
		l := &n.Layers[i]
		in, out := tr.h[i], tr.h[i+1]
		for o := 0; o < l.Out; o++ {
			s, ds, d2s := silu(floats.Dot(l.row(o), in) + l.B[o])
			out[o] = s
			if order >= OrderFirst {
				tr.ds[i][o] = ds
			}
			if order >= OrderSecond {
				tr.d2s[i][o] = d2s
			}
		}
	}
	tr.y = floats.Dot(n.Output, tr.h[len(n.Layers)]) + n.OutBias
	tr.e, tr.de, tr.d2e = bounded(tr.y, n.Bound)
	tr.order = order
	tr.done = true
	return tr.e
}

func (n *Network) own(tr *Trace, op string) {
	if tr.net != n {
		panic(fmt.Sprintf("nn.Network.%s: trace belongs to another network", op))
	}
}

func (n *Network) checkTrace(tr *Trace, need Order) error {
	n.own(tr, "checkTrace")
	if !tr.done {
		return ErrNoTrace
	}
	if tr.order < need {
		return fmt.Errorf("%w: have %v, need %v", ErrTraceOrder, tr.order, need)
	}
	return nil
}
