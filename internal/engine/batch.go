package engine

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/descriptor"
	"github.com/born-ml/mlip/internal/parallel"
)

// Result is the output of one environment in EvaluateBatch.
type Result struct {
	Energy    float64
	Gradients []r3.Vec // dE/dd_j, nil unless forces were requested
}

// EvaluateBatch runs Forward, and Force when withForces is set, over every
// environment. Each worker owns one Workspace, so the result slices are
// copies that outlive the call.
func (e *Engine) EvaluateBatch(ctx context.Context, envs []descriptor.Environment, p *Params, withForces bool, cfg parallel.Config) ([]Result, error) {
	if err := e.CheckParams(p); err != nil {
		return nil, err
	}
	order := OrderEnergy
	if withForces {
		order = OrderGradient
	}
	spaces := make([]*Workspace, parallel.Workers(len(envs), cfg))
	for w := range spaces {
		spaces[w] = e.NewWorkspace(order)
	}

	out := make([]Result, len(envs))
	err := parallel.For(ctx, len(envs), cfg, func(w, i int) error {
		ws := spaces[w]
		energy, err := e.Forward(envs[i], p, ws)
		if err != nil {
			return fmt.Errorf("environment %d: %w", i, err)
		}
		out[i].Energy = energy
		if !withForces {
			return nil
		}
		g, err := e.Force(envs[i], p, ws)
		if err != nil {
			return fmt.Errorf("environment %d: %w", i, err)
		}
		out[i].Gradients = append([]r3.Vec(nil), g...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
