package simulation

import (
	"fmt"

	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/propagation"
)

// Parameter corners used by sensitivity scenarios.
var (
	LowParams  = propagation.Params{RecursionDepth: propagation.MinRecursionDepth, IntrospectionRate: propagation.MinIntrospectionRate}
	HighParams = propagation.Params{RecursionDepth: propagation.MaxRecursionDepth, IntrospectionRate: propagation.MaxIntrospectionRate}
)

// ParamsPtr returns a pointer to p for Window.Params.
func ParamsPtr(p propagation.Params) *propagation.Params {
	return &p
}

// LayeredTopology builds inputs -> hidden -> recursive -> outputs with
// every node of a layer connected to every node of the next, plus feedback
// from each recursive node back into every hidden node.
func LayeredTopology(inputs, hidden, recursive, outputs int) []graph.NodeSpec {
	ids := func(prefix string, n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("%s%d", prefix, i+1)
		}
		return out
	}
	in, hid, rec, out := ids("i", inputs), ids("h", hidden), ids("r", recursive), ids("o", outputs)

	var specs []graph.NodeSpec
	layer := func(role graph.Role, names []string, x float64, next []string) {
		for i, id := range names {
			specs = append(specs, graph.NodeSpec{
				ID:          id,
				Role:        role,
				Position:    graph.Position{X: x, Y: 150 + 50*float64(i)},
				Connections: append([]string(nil), next...),
			})
		}
	}
	layer(graph.RoleInput, in, 50, hid)
	layer(graph.RoleHidden, hid, 200, append(append([]string(nil), rec...), out...))
	layer(graph.RoleRecursive, rec, 350, hid)
	layer(graph.RoleOutput, out, 500, nil)
	return specs
}

// InputOutputTopology builds disconnected input and output nodes. The
// outputs have no incoming edges.
func InputOutputTopology(inputs, outputs int) []graph.NodeSpec {
	var specs []graph.NodeSpec
	for i := 0; i < inputs; i++ {
		specs = append(specs, graph.NodeSpec{
			ID:       fmt.Sprintf("i%d", i+1),
			Role:     graph.RoleInput,
			Position: graph.Position{X: 50, Y: 150 + 50*float64(i)},
		})
	}
	for i := 0; i < outputs; i++ {
		specs = append(specs, graph.NodeSpec{
			ID:       fmt.Sprintf("o%d", i+1),
			Role:     graph.RoleOutput,
			Position: graph.Position{X: 500, Y: 150 + 50*float64(i)},
		})
	}
	return specs
}

// IDsWithRole returns the ids of specs with role r, in order.
func IDsWithRole(specs []graph.NodeSpec, r graph.Role) []string {
	var out []string
	for _, s := range specs {
		if s.Role == r {
			out = append(out, s.ID)
		}
	}
	return out
}
