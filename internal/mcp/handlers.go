package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/ratelimit"
	"github.com/nvandessel/nexus/internal/simulator"
	"github.com/nvandessel/nexus/internal/visualization"
)

// maxTicksPerCall bounds nexus_tick's count.
const maxTicksPerCall = 1000

const (
	statusURI       = "nexus://status"
	nodeURIPrefix   = "nexus://nodes/"
	nodeURITemplate = "nexus://nodes/{id}"
)

// registerTools registers all nexus MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nexus_status",
		Description: "Get the simulation state, iteration, published level, parameters and active node count",
	}, s.handleNexusStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nexus_start",
		Description: "Start the simulation so ticks advance the graph",
	}, s.handleNexusStart)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nexus_pause",
		Description: "Pause the simulation; ticks become no-ops",
	}, s.handleNexusPause)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nexus_reset",
		Description: "Zero every activation, the iteration counter and the published level",
	}, s.handleNexusReset)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nexus_tick",
		Description: "Advance a running simulation by one or more ticks",
	}, s.handleNexusTick)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nexus_set_params",
		Description: "Set recursion depth (1-5) and/or introspection rate (0.1-1.0); out-of-range values are clamped",
	}, s.handleNexusSetParams)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nexus_snapshot",
		Description: "Get every node's role, position, activation and outgoing connections",
	}, s.handleNexusSnapshot)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nexus_graph",
		Description: "Render the graph with current activations in DOT (Graphviz) or JSON format",
	}, s.handleNexusGraph)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         statusURI,
		Name:        "nexus-status",
		Description: "Current simulation status as markdown.",
		MIMEType:    "text/markdown",
	}, s.handleStatusResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: nodeURITemplate,
		Name:        "nexus-node",
		Description: "Activation and connections of a single node.",
		MIMEType:    "text/markdown",
	}, s.handleNodeResource)
}

func (s *Server) handleStatusResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	st := s.driver.Status()

	var sb strings.Builder
	sb.WriteString("# Nexus Simulation\n\n")
	fmt.Fprintf(&sb, "- State: %s\n", st.State)
	fmt.Fprintf(&sb, "- Iteration: %d\n", st.Iteration)
	fmt.Fprintf(&sb, "- Level: %.2f\n", st.Level)
	fmt.Fprintf(&sb, "- Active nodes: %d/%d\n", st.ActiveNodes, st.TotalNodes)
	fmt.Fprintf(&sb, "- Recursion depth: %d\n", st.Params.RecursionDepth)
	fmt.Fprintf(&sb, "- Introspection rate: %.2f\n", st.Params.IntrospectionRate)

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: statusURI, MIMEType: "text/markdown", Text: sb.String()},
		},
	}, nil
}

func (s *Server) handleNodeResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, nodeURIPrefix)
	node, err := s.findNode(id)
	if err != nil {
		return nil, sdk.ResourceNotFoundError(uri)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Node %s\n\n", node.ID)
	fmt.Fprintf(&sb, "- Role: %s\n", node.Role)
	fmt.Fprintf(&sb, "- Activation: %.4f\n", node.Activation)
	fmt.Fprintf(&sb, "- Position: (%g, %g)\n", node.Position.X, node.Position.Y)
	if len(node.Connections) == 0 {
		sb.WriteString("- Connections: none\n")
	} else {
		fmt.Fprintf(&sb, "- Connections: %s\n", strings.Join(node.Connections, ", "))
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: uri, MIMEType: "text/markdown", Text: sb.String()},
		},
	}, nil
}

// findNode returns the state of node id from a fresh frame.
func (s *Server) findNode(id string) (graph.NodeState, error) {
	for _, n := range s.driver.Frame().Nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return graph.NodeState{}, &graph.UnknownNodeError{ID: id}
}

// handleNexusStatus implements the nexus_status tool.
func (s *Server) handleNexusStatus(ctx context.Context, req *sdk.CallToolRequest, args NexusStatusInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nexus_status", start, retErr, sanitizeToolParams(map[string]interface{}{}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nexus_status"); err != nil {
		return nil, StatusOutput{}, err
	}

	st := s.driver.Status()
	return nil, statusOutput(st, describe(st)), nil
}

// handleNexusStart implements the nexus_start tool.
func (s *Server) handleNexusStart(ctx context.Context, req *sdk.CallToolRequest, args NexusCommandInput) (*sdk.CallToolResult, StatusOutput, error) {
	return s.command(ctx, "nexus_start", s.driver.Start, "Simulation running")
}

// handleNexusPause implements the nexus_pause tool.
func (s *Server) handleNexusPause(ctx context.Context, req *sdk.CallToolRequest, args NexusCommandInput) (*sdk.CallToolResult, StatusOutput, error) {
	return s.command(ctx, "nexus_pause", s.driver.Pause, "Simulation paused")
}

// handleNexusReset implements the nexus_reset tool.
func (s *Server) handleNexusReset(ctx context.Context, req *sdk.CallToolRequest, args NexusCommandInput) (*sdk.CallToolResult, StatusOutput, error) {
	return s.command(ctx, "nexus_reset", s.driver.Reset, "Simulation reset")
}

func (s *Server) command(ctx context.Context, tool string, fn func() simulator.Status, msg string) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(tool, start, retErr, sanitizeToolParams(map[string]interface{}{}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, tool); err != nil {
		return nil, StatusOutput{}, err
	}
	st := fn()
	return nil, statusOutput(st, fmt.Sprintf("%s: %s", msg, describe(st))), nil
}

// handleNexusTick implements the nexus_tick tool.
func (s *Server) handleNexusTick(ctx context.Context, req *sdk.CallToolRequest, args NexusTickInput) (_ *sdk.CallToolResult, _ NexusTickOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nexus_tick", start, retErr, sanitizeToolParams(map[string]interface{}{
			"count": args.Count,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nexus_tick"); err != nil {
		return nil, NexusTickOutput{}, err
	}

	count := args.Count
	if count == 0 {
		count = 1
	}
	if count < 0 || count > maxTicksPerCall {
		return nil, NexusTickOutput{}, fmt.Errorf("count must be between 1 and %d, got %d", maxTicksPerCall, args.Count)
	}

	advanced := 0
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, NexusTickOutput{}, err
		}
		ok, err := s.driver.Tick()
		if err != nil {
			return nil, NexusTickOutput{}, fmt.Errorf("tick %d: %w", i+1, err)
		}
		if !ok {
			break
		}
		advanced++
	}

	st := s.driver.Status()
	msg := fmt.Sprintf("Advanced %d tick(s): %s", advanced, describe(st))
	if advanced == 0 {
		msg = "Simulation is idle; call nexus_start first"
	}
	return nil, NexusTickOutput{
		Advanced: advanced,
		Status:   summarizeStatus(st),
		Message:  msg,
	}, nil
}

// handleNexusSetParams implements the nexus_set_params tool.
func (s *Server) handleNexusSetParams(ctx context.Context, req *sdk.CallToolRequest, args NexusSetParamsInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := map[string]interface{}{}
		if args.RecursionDepth != nil {
			params["recursion_depth"] = *args.RecursionDepth
		}
		if args.IntrospectionRate != nil {
			params["introspection_rate"] = *args.IntrospectionRate
		}
		s.auditTool("nexus_set_params", start, retErr, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nexus_set_params"); err != nil {
		return nil, StatusOutput{}, err
	}
	if args.RecursionDepth == nil && args.IntrospectionRate == nil {
		return nil, StatusOutput{}, errors.New("recursion_depth or introspection_rate is required")
	}

	st := s.driver.UpdateParams(args.RecursionDepth, args.IntrospectionRate)

	msg := fmt.Sprintf("Parameters set to depth %d, rate %.2f", st.Params.RecursionDepth, st.Params.IntrospectionRate)
	if (args.RecursionDepth != nil && *args.RecursionDepth != st.Params.RecursionDepth) ||
		(args.IntrospectionRate != nil && *args.IntrospectionRate != st.Params.IntrospectionRate) {
		msg += " (clamped)"
	}
	return nil, statusOutput(st, msg), nil
}

// handleNexusSnapshot implements the nexus_snapshot tool.
func (s *Server) handleNexusSnapshot(ctx context.Context, req *sdk.CallToolRequest, args NexusSnapshotInput) (_ *sdk.CallToolResult, _ NexusSnapshotOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := map[string]interface{}{}
		if args.NodeID != "" {
			params["node_id"] = args.NodeID
		}
		s.auditTool("nexus_snapshot", start, retErr, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nexus_snapshot"); err != nil {
		return nil, NexusSnapshotOutput{}, err
	}

	fr := s.driver.Frame()
	out := NexusSnapshotOutput{Status: summarizeStatus(fr.Status)}
	if args.NodeID != "" {
		for _, n := range fr.Nodes {
			if n.ID == args.NodeID {
				out.Nodes = []NodeSummary{summarizeNode(n)}
				return nil, out, nil
			}
		}
		return nil, NexusSnapshotOutput{}, &graph.UnknownNodeError{ID: args.NodeID}
	}

	out.Nodes = make([]NodeSummary, 0, len(fr.Nodes))
	for _, n := range fr.Nodes {
		out.Nodes = append(out.Nodes, summarizeNode(n))
	}
	return nil, out, nil
}

// handleNexusGraph implements the nexus_graph tool.
func (s *Server) handleNexusGraph(ctx context.Context, req *sdk.CallToolRequest, args NexusGraphInput) (_ *sdk.CallToolResult, _ NexusGraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nexus_graph", start, retErr, sanitizeToolParams(map[string]interface{}{
			"format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nexus_graph"); err != nil {
		return nil, NexusGraphOutput{}, err
	}

	format := args.Format
	if format == "" {
		format = string(visualization.FormatJSON)
	}
	f, err := visualization.ParseFormat(format)
	if err != nil {
		return nil, NexusGraphOutput{}, err
	}

	nodes := s.driver.Frame().Nodes
	edges := 0
	for _, n := range nodes {
		edges += len(n.Connections)
	}

	out := NexusGraphOutput{
		Format:    string(f),
		NodeCount: len(nodes),
		EdgeCount: edges,
	}
	switch f {
	case visualization.FormatDOT:
		out.Graph = visualization.RenderDOT(nodes)
	default:
		out.Graph = visualization.RenderJSON(nodes)
	}
	return nil, out, nil
}

func statusOutput(st simulator.Status, msg string) StatusOutput {
	return StatusOutput{Status: summarizeStatus(st), Message: msg}
}

// describe renders a one-line status summary.
func describe(st simulator.Status) string {
	return fmt.Sprintf("%s at iteration %d, level %.2f, %d/%d nodes active",
		st.State, st.Iteration, st.Level, st.ActiveNodes, st.TotalNodes)
}
