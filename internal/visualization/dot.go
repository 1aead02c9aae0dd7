// Package visualization renders simulation snapshots in various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/nexus/internal/graph"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat maps a user-supplied name to a Format. The empty string
// selects DOT.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatDOT):
		return FormatDOT, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want dot or json)", s)
	}
}

// roleColors maps node roles to DOT border colors.
var roleColors = map[graph.Role]string{
	graph.RoleInput:     "steelblue",
	graph.RoleHidden:    "mediumseagreen",
	graph.RoleRecursive: "tomato",
	graph.RoleOutput:    "goldenrod",
}

// roleShapes maps node roles to DOT shapes.
var roleShapes = map[graph.Role]string{
	graph.RoleInput:     "box",
	graph.RoleHidden:    "ellipse",
	graph.RoleRecursive: "doublecircle",
	graph.RoleOutput:    "box",
}

// RenderDOT produces a Graphviz DOT representation of a snapshot. Fill
// intensity follows activation; positions become pinned pos attributes
// for neato.
func RenderDOT(nodes []graph.NodeState) string {
	var b strings.Builder
	b.WriteString("digraph nexus {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [color=\"gray40\"];\n\n")

	for _, n := range nodes {
		color := roleColors[n.Role]
		if color == "" {
			color = "lightgray"
		}
		shape := roleShapes[n.Role]
		if shape == "" {
			shape = "circle"
		}
		fmt.Fprintf(&b, "  %q [label=\"%s\\n%.2f\", shape=%s, color=%q, fillcolor=%q, pos=\"%g,%g!\", tooltip=\"%s activation=%.4f\"];\n",
			n.ID, n.ID, n.Activation, shape, color, fillColor(n.Activation), n.Position.X, -n.Position.Y, n.Role, n.Activation)
	}
	b.WriteString("\n")

	for _, n := range nodes {
		for _, target := range n.Connections {
			fmt.Fprintf(&b, "  %q -> %q [penwidth=%.1f];\n", n.ID, target, 1+2*n.Activation)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready graph with nodes and edges arrays.
func RenderJSON(nodes []graph.NodeState) map[string]interface{} {
	jsonNodes := make([]map[string]interface{}, 0, len(nodes))
	jsonEdges := make([]map[string]interface{}, 0)
	for _, n := range nodes {
		jsonNodes = append(jsonNodes, map[string]interface{}{
			"id":         n.ID,
			"role":       n.Role.String(),
			"x":          n.Position.X,
			"y":          n.Position.Y,
			"activation": n.Activation,
		})
		for _, target := range n.Connections {
			jsonEdges = append(jsonEdges, map[string]interface{}{
				"source": n.ID,
				"target": target,
				"weight": n.Activation,
			})
		}
	}

	return map[string]interface{}{
		"nodes":      jsonNodes,
		"edges":      jsonEdges,
		"node_count": len(jsonNodes),
		"edge_count": len(jsonEdges),
	}
}

// fillColor shades from white at activation 0 to full red at 1 as an
// #rrggbb string.
func fillColor(activation float64) string {
	a := graph.Clamp01(activation)
	c := 255 - int(a*155+0.5)
	return fmt.Sprintf("#ff%02x%02x", c, c)
}
