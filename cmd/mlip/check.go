package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/descriptor"
	"github.com/born-ml/mlip/internal/engine"
	"github.com/born-ml/mlip/internal/train"
)

var central = &fd.Settings{Formula: fd.Central, Step: 1e-5}

// checker compares the analytic passes of one engine against central
// differences.
type checker struct {
	eng *engine.Engine
	p   *engine.Params
	x   []float64 // flat parameters
	idx []int     // parameter indices to probe
}

// withParam returns a copy of the parameters with x[i] = v.
func (c *checker) withParam(i int, v float64) *engine.Params {
	x := append([]float64(nil), c.x...)
	x[i] = v
	q := c.p.Clone()
	if err := q.Unflatten(x); err != nil {
		panic(err)
	}
	return q
}

func (c *checker) energy(env descriptor.Environment, p *engine.Params) float64 {
	e, err := c.eng.Forward(env, p, c.eng.NewWorkspace(engine.OrderEnergy))
	if err != nil {
		panic(err)
	}
	return e
}

func (c *checker) forces(env descriptor.Environment, p *engine.Params) []r3.Vec {
	ws := c.eng.NewWorkspace(engine.OrderGradient)
	if _, err := c.eng.Forward(env, p, ws); err != nil {
		panic(err)
	}
	g, err := c.eng.Force(env, p, ws)
	if err != nil {
		panic(err)
	}
	return g
}

// relErr is max_i |got_i - want_i| / max(1, max_i |want_i|).
func relErr(got, want []float64) float64 {
	num, den := 0.0, 1.0
	for i := range want {
		num = math.Max(num, math.Abs(got[i]-want[i]))
		den = math.Max(den, math.Abs(want[i]))
	}
	return num / den
}

// sample returns the errors of Force, Backward and BackwardForce on env.
func (c *checker) sample(env descriptor.Environment, gradForce []r3.Vec) (force, backward, backwardForce float64, err error) {
	ws := c.eng.NewWorkspace(engine.OrderForce)
	if _, err = c.eng.Forward(env, c.p, ws); err != nil {
		return
	}
	grad := c.p.Gradient()
	if err = c.eng.Backward(env, c.p, ws, 1, grad, false); err != nil {
		return
	}
	g, err := c.eng.Force(env, c.p, ws)
	if err != nil {
		return
	}
	var gotF, wantF []float64
	for j, nb := range env.Neighbors {
		gotF = append(gotF, g[j].X, g[j].Y, g[j].Z)
		for k := 0; k < 3; k++ {
			wantF = append(wantF, fd.Derivative(func(h float64) float64 {
				moved := env
				moved.Neighbors = append([]descriptor.Neighbor(nil), env.Neighbors...)
				d := []float64{nb.Disp.X, nb.Disp.Y, nb.Disp.Z}
				d[k] = h
				moved.Neighbors[j].Disp = r3.Vec{X: d[0], Y: d[1], Z: d[2]}
				return c.energy(moved, c.p)
			}, []float64{nb.Disp.X, nb.Disp.Y, nb.Disp.Z}[k], central))
		}
	}
	force = relErr(gotF, wantF)

	gradFlat := grad.Flatten(nil)
	gradF := c.p.Gradient()
	if err = c.eng.BackwardForce(env, c.p, ws, gradForce, gradF, false); err != nil {
		return
	}
	gradFFlat := gradF.Flatten(nil)

	var gotB, wantB, gotBF, wantBF []float64
	for _, i := range c.idx {
		gotB = append(gotB, gradFlat[i])
		wantB = append(wantB, fd.Derivative(func(v float64) float64 {
			return c.energy(env, c.withParam(i, v))
		}, c.x[i], central))

		gotBF = append(gotBF, gradFFlat[i])
		wantBF = append(wantBF, fd.Derivative(func(v float64) float64 {
			l := 0.0
			for j, g := range c.forces(env, c.withParam(i, v)) {
				l += r3.Dot(gradForce[j], g)
			}
			return l
		}, c.x[i], central))
	}
	return force, relErr(gotB, wantB), relErr(gotBF, wantBF), nil
}

func newCheckCmd() *cobra.Command {
	var (
		model     modelFlags
		samples   int
		maxParams int
		tol       float64
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare every derivative pass against finite differences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, eng, p, err := model.load()
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(file.Seed))
			syn := file.Synthetic()
			syn.Samples = samples
			data := train.Synthetic(syn, train.NewPairModel(syn.NumTypes, syn.Cutoff), rng)

			c := &checker{eng: eng, p: p, x: p.Flatten(nil)}
			c.idx = rng.Perm(len(c.x))
			if maxParams > 0 && len(c.idx) > maxParams {
				c.idx = c.idx[:maxParams]
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "descriptor length %d, %d parameters, probing %d\n", eng.DescriptorLen(), len(c.x), len(c.idx))
			fmt.Fprintf(out, "%-8s %-12s %-12s %-12s\n", "sample", "force", "backward", "backward-force")
			worst := 0.0
			for s, smp := range data {
				gradForce := make([]r3.Vec, len(smp.Env.Neighbors))
				for j := range gradForce {
					gradForce[j] = r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
				}
				f, b, bf, err := c.sample(smp.Env, gradForce)
				if err != nil {
					return fmt.Errorf("sample %d: %w", s, err)
				}
				fmt.Fprintf(out, "%-8d %-12.3e %-12.3e %-12.3e\n", s, f, b, bf)
				worst = math.Max(worst, math.Max(f, math.Max(b, bf)))
			}
			if worst > tol {
				return fmt.Errorf("largest relative error %.3e exceeds %.1e", worst, tol)
			}
			fmt.Fprintf(out, "ok: largest relative error %.3e\n", worst)
			return nil
		},
	}
	model.register(cmd)
	cmd.Flags().IntVar(&samples, "samples", 3, "random environments to check")
	cmd.Flags().IntVar(&maxParams, "max-params", 40, "parameters probed per environment, 0 for all")
	cmd.Flags().Float64Var(&tol, "tol", 1e-5, "largest accepted relative error")
	return cmd
}
