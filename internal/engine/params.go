package engine

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/mlip/internal/nn"
)

// Params are the trainable parameters of an Engine. A Params of the same
// shape doubles as the gradient accumulator of every backward pass; the
// fuse, shared and local regions never alias.
type Params struct {
	Fuse   []float64     // [fuse channel][neighbor type], empty for fixed policies
	Shared *nn.Network   // nil unless Config.Shared
	Local  []*nn.Network // one per center type
}

// NewParams initializes parameters for e.
func (e *Engine) NewParams(rng *rand.Rand) (*Params, error) {
	d := e.cfg.Descriptor
	p := &Params{
		Fuse:  make([]float64, e.calc.FuseWeights()),
		Local: make([]*nn.Network, d.NumTypes),
	}
	if len(p.Fuse) > 0 {
		nn.Xavier(d.NumTypes, d.FuseSize, p.Fuse, rng)
	}
	var err error
	if e.cfg.Shared {
		if p.Shared, err = nn.NewNetwork(e.calc.Len(), e.cfg.SharedHidden, e.cfg.Bound, rng); err != nil {
			return nil, err
		}
	}
	for t := range p.Local {
		if p.Local[t], err = nn.NewNetwork(e.calc.Len(), e.cfg.Hidden, e.cfg.Bound, rng); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// CheckParams verifies that p has the shape e expects.
func (e *Engine) CheckParams(p *Params) error {
	if p == nil {
		return fmt.Errorf("%w: nil parameters", ErrParams)
	}
	if len(p.Fuse) != e.calc.FuseWeights() {
		return fmt.Errorf("%w: %d fuse weights, want %d", ErrParams, len(p.Fuse), e.calc.FuseWeights())
	}
	if (p.Shared != nil) != e.cfg.Shared {
		return fmt.Errorf("%w: shared network present=%v, configured=%v", ErrParams, p.Shared != nil, e.cfg.Shared)
	}
	if p.Shared != nil {
		if err := e.checkNetwork(p.Shared, e.cfg.SharedHidden, "shared"); err != nil {
			return err
		}
	}
	if len(p.Local) != e.cfg.Descriptor.NumTypes {
		return fmt.Errorf("%w: %d local networks, want %d", ErrParams, len(p.Local), e.cfg.Descriptor.NumTypes)
	}
	for t, n := range p.Local {
		if err := e.checkNetwork(n, e.cfg.Hidden, fmt.Sprintf("local[%d]", t)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) checkNetwork(n *nn.Network, hidden []int, name string) error {
	if n == nil {
		return fmt.Errorf("%w: %s network is nil", ErrParams, name)
	}
	if n.In() != e.calc.Len() || len(n.Layers) != len(hidden) {
		return fmt.Errorf("%w: %s network topology differs", ErrParams, name)
	}
	for i, w := range hidden {
		if n.Layers[i].Out != w {
			return fmt.Errorf("%w: %s layer %d has width %d, want %d", ErrParams, name, i, n.Layers[i].Out, w)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	c := &Params{
		Fuse:  append([]float64(nil), p.Fuse...),
		Local: make([]*nn.Network, len(p.Local)),
	}
	if p.Shared != nil {
		c.Shared = p.Shared.Clone()
	}
	for t, n := range p.Local {
		c.Local[t] = n.Clone()
	}
	return c
}

// Gradient returns a zeroed Params of the same shape.
func (p *Params) Gradient() *Params {
	g := p.Clone()
	g.Zero()
	return g
}

// Zero clears every parameter.
func (p *Params) Zero() {
	clear(p.Fuse)
	if p.Shared != nil {
		p.Shared.Zero()
	}
	for _, n := range p.Local {
		n.Zero()
	}
}

// AddScaled performs p += alpha * o.
func (p *Params) AddScaled(alpha float64, o *Params) {
	floats.AddScaled(p.Fuse, alpha, o.Fuse)
	if p.Shared != nil {
		p.Shared.AddScaled(alpha, o.Shared)
	}
	for t, n := range p.Local {
		n.AddScaled(alpha, o.Local[t])
	}
}

// NumParams returns the number of trainable scalars.
func (p *Params) NumParams() int {
	n := len(p.Fuse)
	if p.Shared != nil {
		n += p.Shared.NumParams()
	}
	for _, l := range p.Local {
		n += l.NumParams()
	}
	return n
}

// Flatten appends every parameter to dst: fuse weights, the shared network,
// then the local networks in type order.
func (p *Params) Flatten(dst []float64) []float64 {
	dst = append(dst, p.Fuse...)
	if p.Shared != nil {
		dst = p.Shared.Flatten(dst)
	}
	for _, n := range p.Local {
		dst = n.Flatten(dst)
	}
	return dst
}

// Unflatten reads parameters in Flatten order.
func (p *Params) Unflatten(src []float64) error {
	if len(src) != p.NumParams() {
		return fmt.Errorf("%w: have %d values, need %d", ErrParams, len(src), p.NumParams())
	}
	src = src[copy(p.Fuse, src):]
	var err error
	if p.Shared != nil {
		if src, err = p.Shared.Unflatten(src); err != nil {
			return err
		}
	}
	for _, n := range p.Local {
		if src, err = n.Unflatten(src); err != nil {
			return err
		}
	}
	return nil
}
