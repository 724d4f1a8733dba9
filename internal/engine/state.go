package engine

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/born-ml/mlip/internal/nn"
	"github.com/born-ml/mlip/internal/serialization"
)

// StateDict names every parameter array of p:
//
//	fuse                         [fuse size, types]
//	shared.layers.<i>.weight     [out, in]
//	shared.layers.<i>.bias       [out]
//	shared.output.weight         [width]
//	shared.output.bias           scalar
//	local.<t>.layers.<i>.weight  ...
//
// The arrays alias p.
func (p *Params) StateDict(numTypes int) map[string]serialization.Tensor {
	sd := make(map[string]serialization.Tensor)
	if len(p.Fuse) > 0 {
		sd["fuse"] = serialization.Tensor{Shape: []int64{int64(len(p.Fuse) / numTypes), int64(numTypes)}, Data: p.Fuse}
	}
	if p.Shared != nil {
		networkState(sd, "shared", p.Shared)
	}
	for t, n := range p.Local {
		networkState(sd, fmt.Sprintf("local.%d", t), n)
	}
	return sd
}

func networkState(sd map[string]serialization.Tensor, prefix string, n *nn.Network) {
	for i := range n.Layers {
		l := &n.Layers[i]
		sd[fmt.Sprintf("%s.layers.%d.weight", prefix, i)] = serialization.Tensor{Shape: []int64{int64(l.Out), int64(l.In)}, Data: l.W}
		sd[fmt.Sprintf("%s.layers.%d.bias", prefix, i)] = serialization.Tensor{Shape: []int64{int64(l.Out)}, Data: l.B}
	}
	sd[prefix+".output.weight"] = serialization.Tensor{Shape: []int64{int64(len(n.Output))}, Data: n.Output}
	sd[prefix+".output.bias"] = serialization.Tensor{Shape: []int64{}, Data: []float64{n.OutBias}}
}

// LoadStateDict builds Params for e from a StateDict. Every array must be
// present with the shape e expects and no other array may appear.
func (e *Engine) LoadStateDict(sd map[string]serialization.Tensor) (*Params, error) {
	p, err := e.NewParams(rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	want := p.StateDict(e.cfg.Descriptor.NumTypes)
	for name := range sd {
		if _, ok := want[name]; !ok {
			return nil, fmt.Errorf("%w: unexpected array %q", ErrParams, name)
		}
	}
	for name, dst := range want {
		src, ok := sd[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing array %q", ErrParams, name)
		}
		if !slices.Equal(src.Shape, dst.Shape) || len(src.Data) != len(dst.Data) {
			return nil, fmt.Errorf("%w: array %q has shape %v, want %v", ErrParams, name, src.Shape, dst.Shape)
		}
		copy(dst.Data, src.Data)
	}
	// Output biases are scalars outside the aliased storage.
	if p.Shared != nil {
		p.Shared.OutBias = sd["shared.output.bias"].Data[0]
	}
	for t, n := range p.Local {
		n.OutBias = sd[fmt.Sprintf("local.%d.output.bias", t)].Data[0]
	}
	return p, nil
}
