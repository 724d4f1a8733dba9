// Package config reads the YAML files of the command line tool.
//
// A model file looks like
//
//	seed: 7
//	engine:
//	  descriptor:
//	    cutoff: 5
//	    radial_order: 4
//	    degree: 4
//	    triple_degree: 3
//	    quad_degree: 2
//	    num_types: 2
//	    policy: per-type-merged
//	  hidden: [16, 16]
//	train:
//	  samples: 64
//	  epochs: 200
//	  optimizer: adam
//	  lr: 0.003
//
// Unset keys keep the values of Default; unknown keys are an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/mlip/internal/channel"
	"github.com/born-ml/mlip/internal/descriptor"
	"github.com/born-ml/mlip/internal/engine"
	"github.com/born-ml/mlip/internal/optim"
	"github.com/born-ml/mlip/internal/parallel"
	"github.com/born-ml/mlip/internal/train"
)

// File is the content of a model file.
type File struct {
	Seed   int64         `yaml:"seed"`
	Engine engine.Config `yaml:"engine"`
	Train  Train         `yaml:"train"`
}

// Train holds the settings of the fit command.
type Train struct {
	// Synthetic dataset.
	Samples      int     `yaml:"samples"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MaxNeighbors int     `yaml:"max_neighbors"`
	MinDistance  float64 `yaml:"min_distance"`

	EnergyWeight float64 `yaml:"energy_weight"`
	ForceWeight  float64 `yaml:"force_weight"`
	FixBasis     bool    `yaml:"fix_basis"`

	Optimizer string  `yaml:"optimizer"` // "adam" or "sgd"
	LR        float64 `yaml:"lr"`
	Momentum  float64 `yaml:"momentum"`
	Epochs    int     `yaml:"epochs"`

	// Workers bounds the goroutines evaluating the loss; 0 uses every CPU.
	Workers int `yaml:"workers"`
}

// Default returns a small working configuration.
func Default() File {
	return File{
		Seed: 1,
		Engine: engine.Config{
			Descriptor: descriptor.Config{
				Cutoff:       5,
				RadialOrder:  4,
				Degree:       4,
				TripleDegree: 3,
				QuadDegree:   2,
				NumTypes:     2,
				Policy:       channel.PerTypeMerged,
			},
			Hidden: []int{16, 16},
		},
		Train: Train{
			Samples:      64,
			MinNeighbors: 4,
			MaxNeighbors: 12,
			MinDistance:  1.5,
			EnergyWeight: 1,
			ForceWeight:  1,
			Optimizer:    "adam",
			LR:           3e-3,
			Epochs:       100,
		},
	}
}

// Load reads and validates a model file.
func Load(path string) (File, error) {
	//nolint:gosec // G304: path is supplied by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a model file over Default and validates it.
func Parse(data []byte) (File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks the training settings and builds the engine once to
// check its configuration.
func (f File) Validate() error {
	if _, err := engine.New(f.Engine); err != nil {
		return err
	}
	t := f.Train
	bad := func(field string, v any, details string) error {
		return &engine.ConfigError{Field: "train." + field, Value: v, Details: details}
	}
	switch {
	case t.Samples <= 0:
		return bad("samples", t.Samples, "must be positive")
	case t.MinNeighbors < 0 || t.MaxNeighbors < t.MinNeighbors:
		return bad("max_neighbors", t.MaxNeighbors, fmt.Sprintf("must be at least min_neighbors %d", t.MinNeighbors))
	case t.MinDistance <= 0 || t.MinDistance >= f.Engine.Descriptor.Cutoff:
		return bad("min_distance", t.MinDistance, "must lie inside the cutoff")
	case t.EnergyWeight < 0 || t.ForceWeight < 0 || t.EnergyWeight+t.ForceWeight == 0:
		return bad("energy_weight", t.EnergyWeight, "weights must be non-negative and not both zero")
	case t.Optimizer != "adam" && t.Optimizer != "sgd":
		return bad("optimizer", t.Optimizer, `want "adam" or "sgd"`)
	case t.LR < 0:
		return bad("lr", t.LR, "must not be negative")
	case t.Momentum < 0 || t.Momentum >= 1:
		return bad("momentum", t.Momentum, "must be in [0, 1)")
	case t.Epochs < 0:
		return bad("epochs", t.Epochs, "must not be negative")
	case t.Workers < 0:
		return bad("workers", t.Workers, "must not be negative")
	}
	return nil
}

// NewOptimizer returns the configured optimizer.
func (t Train) NewOptimizer() optim.Optimizer {
	if t.Optimizer == "sgd" {
		return optim.NewSGD(optim.SGDConfig{LR: t.LR, Momentum: t.Momentum})
	}
	return optim.NewAdam(optim.AdamConfig{LR: t.LR})
}

// Parallel returns the worker configuration.
func (t Train) Parallel() parallel.Config {
	cfg := parallel.DefaultConfig()
	if t.Workers > 0 {
		cfg.NumWorkers = t.Workers
		cfg.Enabled = t.Workers > 1
	}
	return cfg
}

// LossConfig returns the loss weights.
func (t Train) LossConfig() train.LossConfig {
	return train.LossConfig{
		EnergyWeight: t.EnergyWeight,
		ForceWeight:  t.ForceWeight,
		FixBasis:     t.FixBasis,
		Parallel:     t.Parallel(),
	}
}

// Synthetic returns the dataset settings for an engine of the given configuration.
func (f File) Synthetic() train.SyntheticConfig {
	return train.SyntheticConfig{
		Samples:      f.Train.Samples,
		MinNeighbors: f.Train.MinNeighbors,
		MaxNeighbors: f.Train.MaxNeighbors,
		NumTypes:     f.Engine.Descriptor.NumTypes,
		Cutoff:       f.Engine.Descriptor.Cutoff,
		MinDistance:  f.Train.MinDistance,
	}
}
