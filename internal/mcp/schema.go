package mcp

import (
	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/simulator"
)

// NexusStatusInput defines the input for the nexus_status tool.
type NexusStatusInput struct{}

// NexusCommandInput is the empty input of nexus_start, nexus_pause and nexus_reset.
type NexusCommandInput struct{}

// StatusSummary is the tool-facing view of a simulation status.
type StatusSummary struct {
	State             string  `json:"state" jsonschema:"idle or running"`
	Iteration         uint64  `json:"iteration" jsonschema:"Ticks since start or last reset"`
	Level             float64 `json:"level" jsonschema:"Published level, 0-100"`
	RecursionDepth    int     `json:"recursion_depth" jsonschema:"Current recursion depth"`
	IntrospectionRate float64 `json:"introspection_rate" jsonschema:"Current introspection rate"`
	ActiveNodes       int     `json:"active_nodes" jsonschema:"Nodes with activation above 0.1"`
	TotalNodes        int     `json:"total_nodes" jsonschema:"Number of nodes in the graph"`
	MeanActivation    float64 `json:"mean_activation" jsonschema:"Mean activation over all nodes"`
}

// StatusOutput is returned by nexus_status and every control tool.
type StatusOutput struct {
	Status  StatusSummary `json:"status" jsonschema:"Simulation status after the call"`
	Message string        `json:"message" jsonschema:"Human-readable summary"`
}

// NexusTickInput defines the input for the nexus_tick tool.
type NexusTickInput struct {
	Count int `json:"count,omitempty" jsonschema:"Number of ticks to advance (1-1000, default 1)"`
}

// NexusTickOutput defines the output for the nexus_tick tool.
type NexusTickOutput struct {
	Advanced int           `json:"advanced" jsonschema:"Ticks that advanced the graph; 0 while idle"`
	Status   StatusSummary `json:"status" jsonschema:"Simulation status after the last tick"`
	Message  string        `json:"message" jsonschema:"Human-readable summary"`
}

// NexusSetParamsInput defines the input for the nexus_set_params tool.
// Omitted fields keep their current value.
type NexusSetParamsInput struct {
	RecursionDepth    *int     `json:"recursion_depth,omitempty" jsonschema:"Recursion depth, clamped to 1-5"`
	IntrospectionRate *float64 `json:"introspection_rate,omitempty" jsonschema:"Introspection rate, clamped to 0.1-1.0"`
}

// NexusSnapshotInput defines the input for the nexus_snapshot tool.
type NexusSnapshotInput struct {
	NodeID string `json:"node_id,omitempty" jsonschema:"Return only this node"`
}

// NodeSummary is the tool-facing view of one node.
type NodeSummary struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Activation  float64  `json:"activation"`
	Connections []string `json:"connections"`
}

// NexusSnapshotOutput defines the output for the nexus_snapshot tool.
type NexusSnapshotOutput struct {
	Status StatusSummary `json:"status" jsonschema:"Simulation status"`
	Nodes  []NodeSummary `json:"nodes" jsonschema:"Node activations in construction order"`
}

// NexusGraphInput defines the input for the nexus_graph tool.
type NexusGraphInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: dot or json (default json)"`
}

// NexusGraphOutput defines the output for the nexus_graph tool.
type NexusGraphOutput struct {
	Format    string      `json:"format" jsonschema:"Format used"`
	Graph     interface{} `json:"graph" jsonschema:"Rendered graph: a DOT string or a JSON object"`
	NodeCount int         `json:"node_count" jsonschema:"Number of nodes"`
	EdgeCount int         `json:"edge_count" jsonschema:"Number of edges"`
}

func summarizeStatus(st simulator.Status) StatusSummary {
	return StatusSummary{
		State:             st.State.String(),
		Iteration:         st.Iteration,
		Level:             st.Level,
		RecursionDepth:    st.Params.RecursionDepth,
		IntrospectionRate: st.Params.IntrospectionRate,
		ActiveNodes:       st.ActiveNodes,
		TotalNodes:        st.TotalNodes,
		MeanActivation:    st.MeanActivation,
	}
}

func summarizeNode(n graph.NodeState) NodeSummary {
	conns := n.Connections
	if conns == nil {
		conns = []string{}
	}
	return NodeSummary{
		ID:          n.ID,
		Role:        n.Role.String(),
		X:           n.Position.X,
		Y:           n.Position.Y,
		Activation:  n.Activation,
		Connections: conns,
	}
}
