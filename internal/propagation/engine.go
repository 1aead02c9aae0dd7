// Package propagation implements the per-tick activation update of the node
// graph. Every tick reads a snapshot of the previous activations and commits
// all new values in one batch, so the result does not depend on node order
// even though the topology has cycles.
package propagation

import (
	"fmt"
	"math"

	"github.com/nvandessel/nexus/internal/graph"
)

// Engine advances a graph by one tick. It holds no activation state of its
// own; the only mutable thing it owns is the noise source.
type Engine struct {
	noise    NoiseSource
	stimulus Stimulus
}

// Option configures an Engine.
type Option func(*Engine)

// WithStimulus replaces the reference Oscillator.
func WithStimulus(s Stimulus) Option {
	return func(e *Engine) {
		if s != nil {
			e.stimulus = s
		}
	}
}

// NewEngine creates an engine drawing stimulus noise from noise.
// A nil noise source yields zero noise.
func NewEngine(noise NoiseSource, opts ...Option) *Engine {
	if noise == nil {
		noise = ConstantNoise(0)
	}
	e := &Engine{
		noise:    noise,
		stimulus: Oscillator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step computes the next activation of every node and commits them to g.
// iteration is the tick counter before this tick is counted.
//
// Input nodes take the stimulus value, drawing one noise sample each in
// construction order. Every other node with incoming edges takes
// tanh(mean(incoming)), with Recursive nodes scaling the mean by
// RecursionDepth*IntrospectionRate first. Nodes without incoming edges keep
// their value.
func (e *Engine) Step(g *graph.Graph, iteration uint64, p Params) error {
	n := g.Len()
	if n == 0 {
		return nil
	}

	p = p.Clamp()
	snapshot := g.Activations()
	next := make([]float64, n)

	for i := 0; i < n; i++ {
		role := g.RoleAt(i)
		if role == graph.RoleInput {
			next[i] = graph.Clamp01(e.stimulus.Value(iteration, e.noise.Float64()))
			continue
		}

		sources := g.IncomingIndices(i)
		if len(sources) == 0 {
			next[i] = snapshot[i]
			continue
		}

		sum := 0.0
		for _, src := range sources {
			sum += snapshot[src]
		}
		base := sum / float64(len(sources))

		var v float64
		if role == graph.RoleRecursive {
			v = math.Tanh(base * float64(p.RecursionDepth) * p.IntrospectionRate)
		} else {
			v = math.Tanh(base)
		}
		next[i] = graph.Clamp01(v)
	}

	if err := g.Commit(next); err != nil {
		return fmt.Errorf("propagation step: %w", err)
	}
	return nil
}
