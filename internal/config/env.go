package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/mlip/internal/descriptor"
)

// ErrEnvironment is returned for an environment file without neighbors.
var ErrEnvironment = errors.New("config: environment has no neighbors")

// envFile is the YAML form of one neighbor list:
//
//	center_type: 0
//	neighbors:
//	  - {disp: [1.5, 2.0, 0.0], type: 1}
type envFile struct {
	CenterType int `yaml:"center_type"`
	Neighbors  []struct {
		Disp [3]float64 `yaml:"disp"`
		Type int        `yaml:"type"`
	} `yaml:"neighbors"`
}

// LoadEnvironment reads a neighbor list.
func LoadEnvironment(path string) (descriptor.Environment, error) {
	//nolint:gosec // G304: path is supplied by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return descriptor.Environment{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return ParseEnvironment(data)
}

// ParseEnvironment decodes a neighbor list. Type ranges and distances are
// checked by the engine.
func ParseEnvironment(data []byte) (descriptor.Environment, error) {
	var f envFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return descriptor.Environment{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if len(f.Neighbors) == 0 {
		return descriptor.Environment{}, ErrEnvironment
	}
	env := descriptor.Environment{CenterType: f.CenterType, Neighbors: make([]descriptor.Neighbor, len(f.Neighbors))}
	for j, nb := range f.Neighbors {
		env.Neighbors[j] = descriptor.Neighbor{Disp: r3.Vec{X: nb.Disp[0], Y: nb.Disp[1], Z: nb.Disp[2]}, Type: nb.Type}
	}
	return env, nil
}
