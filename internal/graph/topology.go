package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TopologyFile is the on-disk YAML form of a topology.
type TopologyFile struct {
	Nodes []NodeSpec `yaml:"nodes" json:"nodes"`
}

// DefaultTopology returns the reference network: three inputs, three hidden
// nodes with lateral links, two recursive nodes that reference each other and
// feed back into the hidden layer, and two outputs.
func DefaultTopology() []NodeSpec {
	return []NodeSpec{
		{ID: "i1", Role: RoleInput, Position: Position{X: 50, Y: 150}, Connections: []string{"h1", "h2"}},
		{ID: "i2", Role: RoleInput, Position: Position{X: 50, Y: 200}, Connections: []string{"h1", "h3"}},
		{ID: "i3", Role: RoleInput, Position: Position{X: 50, Y: 250}, Connections: []string{"h2", "h3"}},

		{ID: "h1", Role: RoleHidden, Position: Position{X: 200, Y: 150}, Connections: []string{"h2", "r1", "o1"}},
		{ID: "h2", Role: RoleHidden, Position: Position{X: 200, Y: 200}, Connections: []string{"h3", "r1", "o2"}},
		{ID: "h3", Role: RoleHidden, Position: Position{X: 200, Y: 250}, Connections: []string{"h1", "r2", "o1"}},

		{ID: "r1", Role: RoleRecursive, Position: Position{X: 350, Y: 175}, Connections: []string{"r2", "h1"}},
		{ID: "r2", Role: RoleRecursive, Position: Position{X: 350, Y: 225}, Connections: []string{"r1", "h3"}},

		{ID: "o1", Role: RoleOutput, Position: Position{X: 500, Y: 175}},
		{ID: "o2", Role: RoleOutput, Position: Position{X: 500, Y: 225}},
	}
}

// ParseTopology decodes a YAML topology document.
func ParseTopology(data []byte) ([]NodeSpec, error) {
	var tf TopologyFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("%w: parsing topology: %v", ErrInvalidTopology, err)
	}
	return tf.Nodes, nil
}

// LoadTopology reads and decodes a YAML topology file.
func LoadTopology(path string) ([]NodeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}
	return ParseTopology(data)
}

// MarshalTopology encodes specs as a YAML topology document.
func MarshalTopology(specs []NodeSpec) ([]byte, error) {
	data, err := yaml.Marshal(TopologyFile{Nodes: specs})
	if err != nil {
		return nil, fmt.Errorf("encoding topology: %w", err)
	}
	return data, nil
}
