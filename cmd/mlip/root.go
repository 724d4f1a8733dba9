package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/born-ml/mlip/internal/config"
	"github.com/born-ml/mlip/internal/engine"
	"github.com/born-ml/mlip/internal/serialization"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mlip",
		Short:         "Rotation-invariant descriptors and a trainable atomic energy model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newVersionCmd(), newDescribeCmd(), newCheckCmd(), newFitCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mlip %s\n", version)
		},
	}
}

// modelFlags are shared by every command that builds an engine.
type modelFlags struct {
	config string
	params string
	seed   int64
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.config, "config", "", "model YAML file (defaults apply when empty)")
	cmd.Flags().StringVar(&f.params, "params", "", "SafeTensors parameter file; random parameters when empty")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed, overrides the config file when non-zero")
}

// load returns the config file, the engine and its parameters.
func (f *modelFlags) load() (config.File, *engine.Engine, *engine.Params, error) {
	file := config.Default()
	if f.config != "" {
		var err error
		if file, err = config.Load(f.config); err != nil {
			return config.File{}, nil, nil, err
		}
	}
	if f.seed != 0 {
		file.Seed = f.seed
	}
	eng, err := engine.New(file.Engine)
	if err != nil {
		return config.File{}, nil, nil, err
	}

	var p *engine.Params
	if f.params != "" {
		sd, _, err := serialization.LoadFile(f.params)
		if err != nil {
			return config.File{}, nil, nil, err
		}
		if p, err = eng.LoadStateDict(sd); err != nil {
			return config.File{}, nil, nil, fmt.Errorf("%s: %w", f.params, err)
		}
	} else if p, err = eng.NewParams(rand.New(rand.NewSource(file.Seed))); err != nil {
		return config.File{}, nil, nil, err
	}
	return file, eng, p, nil
}
