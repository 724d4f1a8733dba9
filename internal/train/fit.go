package train

import (
	"context"
	"fmt"

	"github.com/born-ml/mlip/internal/engine"
	"github.com/born-ml/mlip/internal/optim"
)

// FitConfig controls Fit.
type FitConfig struct {
	Epochs int

	// Every is called after each epoch with the statistics measured before
	// that epoch's update. It may be nil.
	Every func(epoch int, st Stats)
}

// Fit runs full-batch gradient descent on p in place and returns the
// statistics after the last update.
func Fit(ctx context.Context, l *Loss, data []Sample, p *engine.Params, opt optim.Optimizer, cfg FitConfig) (Stats, error) {
	if err := l.eng.CheckParams(p); err != nil {
		return Stats{}, err
	}
	grad := p.Gradient()
	x := p.Flatten(nil)
	g := make([]float64, 0, len(x))

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		grad.Zero()
		st, err := l.Eval(ctx, data, p, grad)
		if err != nil {
			return Stats{}, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if cfg.Every != nil {
			cfg.Every(epoch, st)
		}

		g = grad.Flatten(g[:0])
		opt.Step(x, g)
		if err := p.Unflatten(x); err != nil {
			return Stats{}, err
		}
	}
	return l.Eval(ctx, data, p, nil)
}
