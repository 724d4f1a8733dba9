package engine

import (
	"fmt"

	"github.com/born-ml/mlip/internal/descriptor"
	"github.com/born-ml/mlip/internal/nn"
)

// Order selects which passes a Workspace supports after Forward.
type Order int

const (
	// OrderEnergy supports Forward only.
	OrderEnergy Order = iota
	// OrderGradient adds Backward and Force.
	OrderGradient
	// OrderForce adds BackwardForce.
	OrderForce
)

func (o Order) trace() nn.Order { return nn.Order(o) }

// String returns the name of the order.
func (o Order) String() string {
	switch o {
	case OrderEnergy:
		return "energy"
	case OrderGradient:
		return "gradient"
	case OrderForce:
		return "force"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// Workspace holds the caches of one center atom. A Workspace is not safe for
// concurrent use; give every goroutine its own.
type Workspace struct {
	eng   *Engine
	order Order

	fwd   *descriptor.ForwardCache
	bwd   *descriptor.BackwardCache
	force *descriptor.ForceCache
	fb    *descriptor.ForceBackwardCache

	traces map[*nn.Network]*nn.Trace

	input []float64 // scaled descriptor, the network input
	dir   []float64 // scaled descriptor tangent
	netIn []float64 // gradient at the network input
	desc  []float64 // the same, carried back to the descriptor

	// state of the last Forward
	params    *Params
	center    int
	energy    float64
	forwarded bool
}

// NewWorkspace allocates the caches for passes up to order.
func (e *Engine) NewWorkspace(order Order) *Workspace {
	if order < OrderEnergy || order > OrderForce {
		panic(fmt.Sprintf("engine.Engine.NewWorkspace: unknown order %d", int(order)))
	}
	n := e.calc.Len()
	ws := &Workspace{
		eng:    e,
		order:  order,
		fwd:    e.calc.NewForwardCache(),
		traces: make(map[*nn.Network]*nn.Trace),
		input:  make([]float64, n),
		dir:    make([]float64, n),
		netIn:  make([]float64, n),
		desc:   make([]float64, n),
	}
	if order >= OrderGradient {
		ws.bwd = e.calc.NewBackwardCache()
		ws.force = e.calc.NewForceCache()
	}
	if order >= OrderForce {
		ws.fb = e.calc.NewForceBackwardCache()
	}
	return ws
}

// Order returns the order the workspace was allocated for.
func (ws *Workspace) Order() Order { return ws.order }

// Energy returns the energy of the last Forward.
func (ws *Workspace) Energy() float64 { return ws.energy }

// Descriptor returns the unscaled descriptor of the last Forward.
func (ws *Workspace) Descriptor() []float64 { return ws.fwd.Descriptor() }

// Invalidate discards the last Forward.
func (ws *Workspace) Invalidate() {
	ws.forwarded = false
	ws.params = nil
	ws.fwd.Invalidate()
}

func (ws *Workspace) trace(n *nn.Network) *nn.Trace {
	tr, ok := ws.traces[n]
	if !ok {
		tr = n.NewTrace()
		ws.traces[n] = tr
	}
	return tr
}

// networks returns the networks evaluated for the center type of the last
// Forward, local first.
func (ws *Workspace) networks(p *Params) []*nn.Network {
	if p.Shared == nil {
		return []*nn.Network{p.Local[ws.center]}
	}
	return []*nn.Network{p.Local[ws.center], p.Shared}
}

func gradNetworks(grad *Params, center int) []*nn.Network {
	if grad.Shared == nil {
		return []*nn.Network{grad.Local[center]}
	}
	return []*nn.Network{grad.Local[center], grad.Shared}
}
