// Package reporter derives the published scalar and related summaries from
// a graph's activations. The free functions are pure; Reporter holds the
// published level and the iteration counter between ticks.
package reporter

import "github.com/nvandessel/nexus/internal/graph"

// DefaultActiveThreshold is the activation a node must exceed to count as
// active in Status.ActiveNodes.
const DefaultActiveThreshold = 0.1

// Level returns mean(Recursive activations) * 100, or 0 when g has no
// Recursive nodes. The result is in [0,100].
func Level(g *graph.Graph) float64 {
	sum := 0.0
	count := 0
	for i := 0; i < g.Len(); i++ {
		if g.RoleAt(i) != graph.RoleRecursive {
			continue
		}
		sum += g.ActivationAt(i)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) * 100
}

// ActiveNodeCount returns how many nodes have activation strictly greater
// than threshold.
func ActiveNodeCount(g *graph.Graph, threshold float64) int {
	n := 0
	for _, v := range g.Activations() {
		if v > threshold {
			n++
		}
	}
	return n
}

// MeanActivation returns the mean activation over all nodes, 0 for an
// empty graph.
func MeanActivation(g *graph.Graph) float64 {
	acts := g.Activations()
	if len(acts) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range acts {
		sum += v
	}
	return sum / float64(len(acts))
}

// Reporter tracks the published level and how many ticks have been
// published since the last reset.
type Reporter struct {
	level      float64
	iterations uint64
}

// New returns a Reporter with level 0 and no iterations.
func New() *Reporter {
	return &Reporter{}
}

// Publish recomputes the level from g and counts one more iteration.
// Call it once after every committed tick.
func (r *Reporter) Publish(g *graph.Graph) float64 {
	r.level = Level(g)
	r.iterations++
	return r.level
}

// PublishedLevel returns the level computed by the last Publish.
func (r *Reporter) PublishedLevel() float64 {
	return r.level
}

// Iterations returns the number of ticks published since the last reset.
func (r *Reporter) Iterations() uint64 {
	return r.iterations
}

// Reset zeroes every activation of g, the iteration counter and the level.
func (r *Reporter) Reset(g *graph.Graph) {
	g.ResetActivations()
	r.iterations = 0
	r.level = 0
}
