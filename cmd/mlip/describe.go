package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/mlip/internal/config"
	"github.com/born-ml/mlip/internal/engine"
	"github.com/born-ml/mlip/internal/invariant"
)

func newDescribeCmd() *cobra.Command {
	var (
		model   modelFlags
		envPath string
	)
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the descriptor, energy and energy gradients of one environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.LoadEnvironment(envPath)
			if err != nil {
				return err
			}
			_, eng, p, err := model.load()
			if err != nil {
				return err
			}

			ws := eng.NewWorkspace(engine.OrderGradient)
			energy, err := eng.Forward(env, p, ws)
			if err != nil {
				return err
			}
			grads, err := eng.Force(env, p, ws)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			calc := eng.Calculator()
			d := ws.Descriptor()
			fmt.Fprintf(out, "descriptor (%d values, %d channels)\n", len(d), calc.Channels())
			for f := invariant.Family(0); f < invariant.NumFamilies; f++ {
				off, n := calc.Family(f)
				fmt.Fprintf(out, "  %v:", f)
				for _, v := range d[off : off+n] {
					fmt.Fprintf(out, " %.10g", v)
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "energy %.12g\n", energy)
			fmt.Fprintln(out, "dE/dd per neighbor")
			for j, g := range grads {
				fmt.Fprintf(out, "  %3d type %d  % .8e % .8e % .8e\n", j, env.Neighbors[j].Type, g.X, g.Y, g.Z)
			}
			return nil
		},
	}
	model.register(cmd)
	cmd.Flags().StringVar(&envPath, "env", "", "environment YAML file")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}
