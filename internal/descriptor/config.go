package descriptor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/mlip/internal/channel"
)

// Sequencing and input errors.
var (
	ErrNotForwarded = errors.New("descriptor: no forward pass recorded in cache")
	ErrStaleCache   = errors.New("descriptor: cache was written for a different environment")
	ErrNoForce      = errors.New("descriptor: no force pass recorded for the current forward pass")
	ErrCoincident   = errors.New("descriptor: neighbor coincides with center atom")
	ErrNeighborType = errors.New("descriptor: neighbor type out of range")
	ErrShape        = errors.New("descriptor: buffer has wrong length")
)

// RadialMode selects how the degree-0 pairwise invariant is formed.
type RadialMode int

const (
	// RadialSquare keeps the degree-0 term as the plain square of the radial sum.
	RadialSquare RadialMode = iota
	// RadialNone drops the degree-0 term.
	RadialNone
)

// String returns the configuration name of the mode.
func (m RadialMode) String() string {
	switch m {
	case RadialSquare:
		return "square"
	case RadialNone:
		return "none"
	default:
		return fmt.Sprintf("RadialMode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m RadialMode) MarshalText() ([]byte, error) {
	if m != RadialSquare && m != RadialNone {
		return nil, fmt.Errorf("descriptor: unknown radial mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *RadialMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "square", "":
		*m = RadialSquare
	case "none":
		*m = RadialNone
	default:
		return &ConfigError{Field: "radial", Value: string(b), Details: `want "square" or "none"`}
	}
	return nil
}

// Config fixes every size of the descriptor. It is immutable once a
// Calculator has been built from it.
type Config struct {
	Cutoff       float64        `yaml:"cutoff"`
	RadialOrder  int            `yaml:"radial_order"`
	Degree       int            `yaml:"degree"`
	TripleDegree int            `yaml:"triple_degree"`
	QuadDegree   int            `yaml:"quad_degree"`
	NumTypes     int            `yaml:"num_types"`
	Policy       channel.Policy `yaml:"policy"`
	FuseSize     int            `yaml:"fuse_size"`
	Radial       RadialMode     `yaml:"radial"`
}

// ConfigError reports a configuration value that cannot be served.
type ConfigError struct {
	Field   string // configuration field, e.g. "degree"
	Value   any    // offending value
	Details string // additional details
	Err     error  // underlying sentinel, if any
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid %s %v", e.Field, e.Value)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying sentinel error.
func (e *ConfigError) Unwrap() error { return e.Err }

// Neighbor is one entry of a neighbor list.
type Neighbor struct {
	Disp r3.Vec // neighbor position minus center position
	Type int
}

// Environment is the neighbor list of one center atom.
type Environment struct {
	CenterType int
	Neighbors  []Neighbor
}

// FromPositions builds the environment of an atom at center from absolute
// neighbor positions.
func FromPositions(center r3.Vec, centerType int, pos []r3.Vec, types []int) Environment {
	if len(pos) != len(types) {
		panic(fmt.Sprintf("descriptor.FromPositions: %d positions, %d types", len(pos), len(types)))
	}
	env := Environment{CenterType: centerType, Neighbors: make([]Neighbor, len(pos))}
	for j := range pos {
		env.Neighbors[j] = Neighbor{Disp: r3.Sub(pos[j], center), Type: types[j]}
	}
	return env
}

// Rotate returns a copy of the environment with every displacement rotated by q.
func (e Environment) Rotate(q r3.Rotation) Environment {
	out := Environment{CenterType: e.CenterType, Neighbors: make([]Neighbor, len(e.Neighbors))}
	for j, nb := range e.Neighbors {
		out.Neighbors[j] = Neighbor{Disp: q.Rotate(nb.Disp), Type: nb.Type}
	}
	return out
}
