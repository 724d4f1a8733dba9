package train

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/engine"
	"github.com/born-ml/mlip/internal/parallel"
)

// LossConfig weights the two loss terms.
type LossConfig struct {
	EnergyWeight float64
	ForceWeight  float64

	// FixBasis freezes the fuse weights.
	FixBasis bool

	Parallel parallel.Config
}

// Stats summarizes one loss evaluation.
type Stats struct {
	Loss       float64
	EnergyRMSE float64
	ForceRMSE  float64 // per Cartesian component
}

// Loss evaluates the training loss of an Engine.
type Loss struct {
	eng *engine.Engine
	cfg LossConfig
}

// NewLoss returns a Loss for e.
func NewLoss(e *engine.Engine, cfg LossConfig) *Loss {
	return &Loss{eng: e, cfg: cfg}
}

// partial is the per-worker accumulator.
type partial struct {
	ws     *engine.Workspace
	grad   *engine.Params
	gradF  []r3.Vec
	loss   float64
	sqE    float64
	sqF    float64
	forceN int
}

// Eval returns the loss of p over data and, when grad is not nil,
// accumulates its parameter gradient into grad.
//
// Samples are split between workers; every worker owns a workspace and a
// gradient buffer that are summed in worker order at the end.
func (l *Loss) Eval(ctx context.Context, data []Sample, p *engine.Params, grad *engine.Params) (Stats, error) {
	if len(data) == 0 {
		return Stats{}, nil
	}
	numTypes := l.eng.Config().Descriptor.NumTypes
	for i := range data {
		if err := data[i].check(numTypes); err != nil {
			return Stats{}, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	order := engine.OrderEnergy
	if grad != nil || l.cfg.ForceWeight != 0 {
		order = engine.OrderGradient
	}
	if grad != nil && l.cfg.ForceWeight != 0 {
		order = engine.OrderForce
	}

	parts := make([]partial, parallel.Workers(len(data), l.cfg.Parallel))
	for w := range parts {
		parts[w].ws = l.eng.NewWorkspace(order)
		if grad != nil {
			parts[w].grad = p.Gradient()
		}
	}

	scale := 1 / float64(len(data))
	err := parallel.For(ctx, len(data), l.cfg.Parallel, func(w, i int) error {
		if err := l.sample(&parts[w], &data[i], p, scale); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	var sqE, sqF float64
	forceN := 0
	for w := range parts {
		st.Loss += parts[w].loss
		sqE += parts[w].sqE
		sqF += parts[w].sqF
		forceN += parts[w].forceN
		if grad != nil {
			grad.AddScaled(1, parts[w].grad)
		}
	}
	st.EnergyRMSE = math.Sqrt(sqE / float64(len(data)))
	if forceN > 0 {
		st.ForceRMSE = math.Sqrt(sqF / float64(3*forceN))
	}
	return st, nil
}

func (l *Loss) sample(pt *partial, s *Sample, p *engine.Params, scale float64) error {
	energy, err := l.eng.Forward(s.Env, p, pt.ws)
	if err != nil {
		return err
	}
	de := energy - s.Energy
	pt.sqE += de * de
	pt.loss += scale * l.cfg.EnergyWeight * de * de

	if pt.grad != nil && l.cfg.EnergyWeight != 0 {
		if err := l.eng.Backward(s.Env, p, pt.ws, 2*scale*l.cfg.EnergyWeight*de, pt.grad, l.cfg.FixBasis); err != nil {
			return err
		}
	}
	if l.cfg.ForceWeight == 0 || s.Gradients == nil {
		return nil
	}

	g, err := l.eng.Force(s.Env, p, pt.ws)
	if err != nil {
		return err
	}
	pt.gradF = pt.gradF[:0]
	for j := range g {
		diff := r3.Sub(g[j], s.Gradients[j])
		sq := r3.Dot(diff, diff)
		pt.sqF += sq
		pt.loss += scale * l.cfg.ForceWeight * sq
		pt.gradF = append(pt.gradF, r3.Scale(2*scale*l.cfg.ForceWeight, diff))
	}
	pt.forceN += len(g)

	if pt.grad == nil {
		return nil
	}
	return l.eng.BackwardForce(s.Env, p, pt.ws, pt.gradF, pt.grad, l.cfg.FixBasis)
}
