package channel

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Mixer applies one policy to coefficient tensors laid out as
// [channel][block], where block is the per-neighbor radial x harmonic block.
//
// A Mixer is immutable and safe for concurrent use.
type Mixer struct {
	policy   Policy
	numTypes int
	fuseSize int
	channels int
	block    int
}

// NewMixer validates the policy and returns a Mixer for blocks of the given length.
func NewMixer(p Policy, numTypes, fuseSize, block int) (*Mixer, error) {
	if err := p.Validate(numTypes, fuseSize); err != nil {
		return nil, err
	}
	if block <= 0 {
		return nil, fmt.Errorf("channel: block length must be positive, got %d", block)
	}
	return &Mixer{
		policy:   p,
		numTypes: numTypes,
		fuseSize: fuseSize,
		channels: p.Channels(numTypes, fuseSize),
		block:    block,
	}, nil
}

// Policy returns the weighting policy.
func (m *Mixer) Policy() Policy { return m.policy }

// Channels returns the number of channels.
func (m *Mixer) Channels() int { return m.channels }

// Block returns the per-channel block length.
func (m *Mixer) Block() int { return m.block }

// NumTypes returns the number of neighbor types.
func (m *Mixer) NumTypes() int { return m.numTypes }

// FuseWeights returns the number of learned weights (zero for non-fuse policies).
func (m *Mixer) FuseWeights() int { return m.policy.FuseWeights(m.numTypes, m.fuseSize) }

// TensorLen returns the length of a full coefficient tensor.
func (m *Mixer) TensorLen() int { return m.channels * m.block }

// Route is one (channel, weight) destination of a neighbor.
type Route struct {
	Channel int
	Weight  float64
	Fuse    int // index into the fuse weights, -1 when the weight is fixed
}

// Routes appends the destinations of a neighbor of type t to dst.
func (m *Mixer) Routes(t int, fuse []float64, dst []Route) []Route {
	if t < 0 || t >= m.numTypes {
		panic(fmt.Sprintf("channel.Mixer.Routes: type %d outside 0..%d", t, m.numTypes-1))
	}
	switch m.policy {
	case None:
		dst = append(dst, Route{Channel: 0, Weight: 1, Fuse: -1})
	case PerType:
		dst = append(dst, Route{Channel: t, Weight: 1, Fuse: -1})
	case PerTypeMerged:
		dst = append(dst,
			Route{Channel: t, Weight: 1, Fuse: -1},
			Route{Channel: m.numTypes, Weight: 1, Fuse: -1})
	case SignedParity:
		sign := 1.0
		if t%2 == 1 {
			sign = -1
		}
		dst = append(dst,
			Route{Channel: t, Weight: 1, Fuse: -1},
			Route{Channel: m.numTypes, Weight: sign, Fuse: -1})
	case Fuse, FuseMerged:
		if len(fuse) != m.FuseWeights() {
			panic(fmt.Sprintf("channel.Mixer.Routes: %d fuse weights, want %d", len(fuse), m.FuseWeights()))
		}
		for k := 0; k < m.fuseSize; k++ {
			w := k*m.numTypes + t
			dst = append(dst, Route{Channel: k, Weight: fuse[w], Fuse: w})
		}
		if m.policy == FuseMerged {
			dst = append(dst, Route{Channel: m.fuseSize, Weight: 1, Fuse: -1})
		}
	}
	return dst
}

func (m *Mixer) slice(tensor []float64, c int) []float64 {
	return tensor[c*m.block : (c+1)*m.block]
}

// Accumulate adds the block of one neighbor of type t to every channel it is routed to.
// routes is scratch space and may be nil.
func (m *Mixer) Accumulate(coef []float64, t int, block, fuse []float64, routes []Route) []Route {
	m.checkTensor(coef, "Accumulate")
	routes = m.Routes(t, fuse, routes[:0])
	for _, r := range routes {
		floats.AddScaled(m.slice(coef, r.Channel), r.Weight, block)
	}
	return routes
}

// Scatter is the reverse of Accumulate: it writes the gradient of a neighbor's
// block, sum_c w_c * coefGrad[c], into dst.
func (m *Mixer) Scatter(coefGrad []float64, t int, fuse, dst []float64, routes []Route) []Route {
	m.checkTensor(coefGrad, "Scatter")
	for i := range dst {
		dst[i] = 0
	}
	routes = m.Routes(t, fuse, routes[:0])
	for _, r := range routes {
		floats.AddScaled(dst, r.Weight, m.slice(coefGrad, r.Channel))
	}
	return routes
}

// FuseGrad accumulates the gradient with respect to the fuse weights of a
// neighbor of type t: gradFuse[k,t] += <coefGrad[k], block>.
// It is a no-op for policies without learned weights.
func (m *Mixer) FuseGrad(coefGrad []float64, t int, block, fuse, gradFuse []float64, routes []Route) []Route {
	if !m.policy.Fused() {
		return routes
	}
	m.checkTensor(coefGrad, "FuseGrad")
	routes = m.Routes(t, fuse, routes[:0])
	for _, r := range routes {
		if r.Fuse >= 0 {
			gradFuse[r.Fuse] += floats.Dot(m.slice(coefGrad, r.Channel), block)
		}
	}
	return routes
}

func (m *Mixer) checkTensor(tensor []float64, op string) {
	if len(tensor) != m.TensorLen() {
		panic(fmt.Sprintf("channel.Mixer.%s: tensor has %d values, want %d", op, len(tensor), m.TensorLen()))
	}
}
