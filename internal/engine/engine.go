// Package engine runs the energy model of one center atom through its four
// passes:
//
//	Forward        energy E
//	Backward       dE/dparams
//	Force          dE/dd_j for every neighbor displacement d_j
//	BackwardForce  d/dparams of sum_j gradForce_j . dE/dd_j
//
// The energy is E = Shared(x) + Local[center type](x), where x is the
// descriptor of the environment, optionally scaled per feature. All passes of
// one atom share a Workspace; Forward must come first, Force before
// BackwardForce, and the environment must not change in between.
package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/mlip/internal/descriptor"
	"github.com/born-ml/mlip/internal/nn"
)

// Sequencing errors, shared with the lower layers so errors.Is works on
// either name.
var (
	ErrNotForwarded = descriptor.ErrNotForwarded
	ErrStaleCache   = descriptor.ErrStaleCache
	ErrNoForce      = descriptor.ErrNoForce
	ErrTraceOrder   = nn.ErrTraceOrder
)

// Input errors.
var (
	ErrCenterType = errors.New("engine: center type out of range")
	ErrParams     = errors.New("engine: parameters do not match configuration")
)

// ConfigError is the configuration error type of every layer.
type ConfigError = descriptor.ConfigError

// Config is the construction-time choice of descriptor and network.
type Config struct {
	Descriptor descriptor.Config `yaml:"descriptor"`

	// Hidden widths of the per-center-type networks.
	Hidden []int `yaml:"hidden"`

	// Shared adds a network whose parameters are shared by all center types.
	Shared       bool  `yaml:"shared"`
	SharedHidden []int `yaml:"shared_hidden"`

	// Bound squashes each network output through Bound*tanh(y/Bound); zero disables it.
	Bound float64 `yaml:"bound"`

	// DescriptorScale multiplies the descriptor feature-wise before the
	// networks. Empty means no scaling.
	DescriptorScale []float64 `yaml:"descriptor_scale"`
}

// Engine evaluates one configuration. It is immutable and safe for
// concurrent use; per-atom state lives in Workspace.
type Engine struct {
	cfg   Config
	calc  *descriptor.Calculator
	scale []float64
}

// New validates cfg. Every returned error is a *ConfigError.
func New(cfg Config) (*Engine, error) {
	calc, err := descriptor.New(cfg.Descriptor)
	if err != nil {
		return nil, err
	}
	if err := checkWidths("hidden", cfg.Hidden); err != nil {
		return nil, err
	}
	if cfg.Shared {
		if err := checkWidths("shared_hidden", cfg.SharedHidden); err != nil {
			return nil, err
		}
	} else if len(cfg.SharedHidden) > 0 {
		return nil, &ConfigError{Field: "shared_hidden", Value: cfg.SharedHidden, Details: "set without shared"}
	}
	if cfg.Bound < 0 || math.IsInf(cfg.Bound, 0) || math.IsNaN(cfg.Bound) {
		return nil, &ConfigError{Field: "bound", Value: cfg.Bound, Details: "must be zero or positive and finite"}
	}
	if n := len(cfg.DescriptorScale); n != 0 && n != calc.Len() {
		return nil, &ConfigError{
			Field:   "descriptor_scale",
			Value:   n,
			Details: fmt.Sprintf("want %d entries to match the descriptor", calc.Len()),
		}
	}

	e := &Engine{cfg: cfg, calc: calc}
	if len(cfg.DescriptorScale) > 0 {
		e.scale = append([]float64(nil), cfg.DescriptorScale...)
	}
	return e, nil
}

func checkWidths(field string, widths []int) error {
	for i, w := range widths {
		if w <= 0 {
			return &ConfigError{Field: field, Value: widths, Details: fmt.Sprintf("layer %d has width %d", i, w)}
		}
	}
	return nil
}

// Config returns the configuration.
func (e *Engine) Config() Config { return e.cfg }

// Calculator returns the descriptor calculator.
func (e *Engine) Calculator() *descriptor.Calculator { return e.calc }

// DescriptorLen returns the descriptor length, which is the network input width.
func (e *Engine) DescriptorLen() int { return e.calc.Len() }

// applyScale writes src scaled feature-wise into dst.
func (e *Engine) applyScale(dst, src []float64) {
	if e.scale == nil {
		copy(dst, src)
		return
	}
	for i, s := range e.scale {
		dst[i] = s * src[i]
	}
}
