// Package graph holds the fixed node topology and the mutable activation
// vector of the simulator. Nodes live in an arena and refer to each other by
// index, so cyclic topologies need no special handling.
//
// The inverse adjacency index (which nodes feed each node) is built once at
// construction so that reading a node's inputs costs O(in-degree) per tick.
package graph

import (
	"fmt"
	"math"
)

// Graph is a fixed topology plus one activation value per node.
// It is not safe for concurrent mutation; the simulator is its only writer.
type Graph struct {
	nodes    []node
	index    map[string]int
	incoming [][]int // incoming[target] = source indices in construction order
}

// New builds a graph from node specs. Each spec's Connections are its
// outgoing edges. All activations start at 0.
//
// New returns an *InvalidTopologyError listing every empty id, duplicate id,
// and edge that names an unknown node. A source naming the same target more
// than once contributes a single incoming edge.
func New(specs []NodeSpec) (*Graph, error) {
	var issues []TopologyIssue

	index := make(map[string]int, len(specs))
	for i, spec := range specs {
		if spec.ID == "" {
			issues = append(issues, TopologyIssue{NodeID: spec.ID, Issue: "empty-id"})
			continue
		}
		if _, exists := index[spec.ID]; exists {
			issues = append(issues, TopologyIssue{NodeID: spec.ID, Issue: "duplicate-id"})
			continue
		}
		if _, ok := roleNames[spec.Role]; !ok {
			issues = append(issues, TopologyIssue{NodeID: spec.ID, Issue: "unknown-role"})
		}
		index[spec.ID] = i
	}

	nodes := make([]node, len(specs))
	for i, spec := range specs {
		nodes[i] = node{
			id:       spec.ID,
			role:     spec.Role,
			position: spec.Position,
		}
		seen := make(map[int]bool, len(spec.Connections))
		for _, target := range spec.Connections {
			ti, ok := index[target]
			if !ok {
				issues = append(issues, TopologyIssue{NodeID: spec.ID, RefID: target, Issue: "dangling"})
				continue
			}
			if seen[ti] {
				continue
			}
			seen[ti] = true
			nodes[i].outgoing = append(nodes[i].outgoing, ti)
		}
	}

	if len(issues) > 0 {
		return nil, &InvalidTopologyError{Issues: issues}
	}

	incoming := make([][]int, len(nodes))
	for src := range nodes {
		for _, tgt := range nodes[src].outgoing {
			incoming[tgt] = append(incoming[tgt], src)
		}
	}

	return &Graph{
		nodes:    nodes,
		index:    index,
		incoming: incoming,
	}, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IDs returns node ids in construction order.
func (g *Graph) IDs() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.id
	}
	return ids
}

// IndexOf returns the arena index of id.
func (g *Graph) IndexOf(id string) (int, error) {
	i, ok := g.index[id]
	if !ok {
		return 0, &UnknownNodeError{ID: id}
	}
	return i, nil
}

// Role returns the role of the node with the given id.
func (g *Graph) Role(id string) (Role, error) {
	i, err := g.IndexOf(id)
	if err != nil {
		return 0, err
	}
	return g.nodes[i].role, nil
}

// RoleAt returns the role of the node at arena index i.
func (g *Graph) RoleAt(i int) Role {
	return g.nodes[i].role
}

// ActivationAt returns the activation of the node at arena index i.
func (g *Graph) ActivationAt(i int) float64 {
	return g.nodes[i].activation
}

// ActivationOf returns the current activation of id.
func (g *Graph) ActivationOf(id string) (float64, error) {
	i, err := g.IndexOf(id)
	if err != nil {
		return 0, err
	}
	return g.nodes[i].activation, nil
}

// SetActivation clamps value to [0,1] and stores it.
func (g *Graph) SetActivation(id string, value float64) error {
	i, err := g.IndexOf(id)
	if err != nil {
		return err
	}
	g.nodes[i].activation = Clamp01(value)
	return nil
}

// IncomingActivations returns the activation of every node whose outgoing
// set contains id, in construction order.
func (g *Graph) IncomingActivations(id string) ([]float64, error) {
	i, err := g.IndexOf(id)
	if err != nil {
		return nil, err
	}
	sources := g.incoming[i]
	out := make([]float64, len(sources))
	for k, src := range sources {
		out[k] = g.nodes[src].activation
	}
	return out, nil
}

// IncomingIndices returns the arena indices feeding node i. The returned
// slice is shared and must not be modified.
func (g *Graph) IncomingIndices(i int) []int {
	return g.incoming[i]
}

// Activations returns a copy of all activations in construction order.
func (g *Graph) Activations() []float64 {
	out := make([]float64, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.activation
	}
	return out
}

// Commit replaces all activations at once. next must hold one value per
// node in construction order; each value is clamped to [0,1].
func (g *Graph) Commit(next []float64) error {
	if len(next) != len(g.nodes) {
		return fmt.Errorf("commit: got %d activations for %d nodes", len(next), len(g.nodes))
	}
	for i, v := range next {
		g.nodes[i].activation = Clamp01(v)
	}
	return nil
}

// ResetActivations sets every activation to 0.
func (g *Graph) ResetActivations() {
	for i := range g.nodes {
		g.nodes[i].activation = 0
	}
}

// Snapshot returns a copy of every node's state for rendering.
func (g *Graph) Snapshot() []NodeState {
	out := make([]NodeState, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = NodeState{
			ID:          n.id,
			Role:        n.role,
			Position:    n.position,
			Activation:  n.activation,
			Connections: g.connectionIDs(i),
		}
	}
	return out
}

// Topology returns the specs the graph was built from, with duplicate
// connections collapsed.
func (g *Graph) Topology() []NodeSpec {
	out := make([]NodeSpec, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = NodeSpec{
			ID:          n.id,
			Role:        n.role,
			Position:    n.position,
			Connections: g.connectionIDs(i),
		}
	}
	return out
}

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, n := range g.nodes {
		total += len(n.outgoing)
	}
	return total
}

func (g *Graph) connectionIDs(i int) []string {
	ids := make([]string, len(g.nodes[i].outgoing))
	for k, tgt := range g.nodes[i].outgoing {
		ids[k] = g.nodes[tgt].id
	}
	return ids
}

// Clamp01 limits v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
