package propagation

import (
	"math"
	"testing"

	"github.com/nvandessel/nexus/internal/graph"
)

// newGraph is a test helper that builds a graph and fails the test on error.
func newGraph(t *testing.T, specs []graph.NodeSpec) *graph.Graph {
	t.Helper()
	g, err := graph.New(specs)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	return g
}

// activation is a test helper that reads a node's activation.
func activation(t *testing.T, g *graph.Graph, id string) float64 {
	t.Helper()
	v, err := g.ActivationOf(id)
	if err != nil {
		t.Fatalf("ActivationOf(%s): %v", id, err)
	}
	return v
}

func assertClose(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("%s = %.17g, want %.17g", label, got, want)
	}
}

func TestEngine_EmptyGraph(t *testing.T) {
	g := newGraph(t, nil)
	eng := NewEngine(NewSeededNoise(1))
	if err := eng.Step(g, 0, DefaultParams()); err != nil {
		t.Fatalf("Step on empty graph: %v", err)
	}
}

func TestEngine_ReferenceTrajectory(t *testing.T) {
	g := newGraph(t, graph.DefaultTopology())
	eng := NewEngine(ConstantNoise(0))
	p := DefaultParams()

	// Tick 1: inputs take sin(0) stimulus, everything else reads the
	// all-zero snapshot.
	if err := eng.Step(g, 0, p); err != nil {
		t.Fatalf("Step: %v", err)
	}
	for _, id := range []string{"i1", "i2", "i3"} {
		assertClose(t, "tick1 "+id, activation(t, g, id), 0.5)
	}
	for _, id := range []string{"h1", "h2", "h3", "r1", "r2", "o1", "o2"} {
		assertClose(t, "tick1 "+id, activation(t, g, id), 0)
	}

	// Tick 2: hidden nodes see the inputs from tick 1 only.
	if err := eng.Step(g, 1, p); err != nil {
		t.Fatalf("Step: %v", err)
	}
	assertClose(t, "tick2 i1", activation(t, g, "i1"), 0.54991670832341411)
	assertClose(t, "tick2 h1", activation(t, g, "h1"), 0.24491866240370913)
	assertClose(t, "tick2 h2", activation(t, g, "h2"), 0.32151273753163434)
	assertClose(t, "tick2 h3", activation(t, g, "h3"), 0.24491866240370913)
	assertClose(t, "tick2 r1", activation(t, g, "r1"), 0)

	// Tick 3: recursive nodes apply the depth*rate gain.
	if err := eng.Step(g, 2, p); err != nil {
		t.Fatalf("Step: %v", err)
	}
	assertClose(t, "tick3 r1", activation(t, g, "r1"), 0.37695194961711287)
	assertClose(t, "tick3 r2", activation(t, g, "r2"), 0.25164157656240776)
	assertClose(t, "tick3 o1", activation(t, g, "o1"), 0.24013621895243301)
	assertClose(t, "tick3 o2", activation(t, g, "o2"), 0.31087410559459933)
}

func TestEngine_SynchronousUpdate(t *testing.T) {
	// a -> b -> c. With a snapshot update, activation needs one tick per hop.
	g := newGraph(t, []graph.NodeSpec{
		{ID: "a", Role: graph.RoleInput, Connections: []string{"b"}},
		{ID: "b", Role: graph.RoleHidden, Connections: []string{"c"}},
		{ID: "c", Role: graph.RoleOutput},
	})
	eng := NewEngine(ConstantNoise(0))

	if err := eng.Step(g, 0, DefaultParams()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if v := activation(t, g, "b"); v != 0 {
		t.Errorf("b leaked same-tick input: %f", v)
	}
	if v := activation(t, g, "c"); v != 0 {
		t.Errorf("c leaked same-tick input: %f", v)
	}

	if err := eng.Step(g, 1, DefaultParams()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	assertClose(t, "b", activation(t, g, "b"), math.Tanh(0.5))
	if v := activation(t, g, "c"); v != 0 {
		t.Errorf("c should still be 0 after two ticks, got %f", v)
	}
}

func TestEngine_NoIncomingKeepsValue(t *testing.T) {
	g := newGraph(t, []graph.NodeSpec{
		{ID: "lonely", Role: graph.RoleHidden},
		{ID: "out", Role: graph.RoleOutput},
	})
	if err := g.SetActivation("lonely", 0.3); err != nil {
		t.Fatalf("SetActivation: %v", err)
	}

	eng := NewEngine(NewSeededNoise(5))
	for i := uint64(0); i < 5; i++ {
		if err := eng.Step(g, i, DefaultParams()); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	assertClose(t, "lonely", activation(t, g, "lonely"), 0.3)
	assertClose(t, "out", activation(t, g, "out"), 0)
}

func TestEngine_RecursiveGain(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   float64
	}{
		{"min", Params{RecursionDepth: 1, IntrospectionRate: 0.1}, math.Tanh(0.4 * 1 * 0.1)},
		{"default", DefaultParams(), math.Tanh(0.4 * 3 * 0.7)},
		{"max", Params{RecursionDepth: 5, IntrospectionRate: 1.0}, math.Tanh(0.4 * 5 * 1.0)},
		{"clamped high", Params{RecursionDepth: 9, IntrospectionRate: 4}, math.Tanh(0.4 * 5 * 1.0)},
		{"clamped low", Params{RecursionDepth: 0, IntrospectionRate: 0}, math.Tanh(0.4 * 1 * 0.1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraph(t, []graph.NodeSpec{
				{ID: "h", Role: graph.RoleHidden, Connections: []string{"r", "plain"}},
				{ID: "r", Role: graph.RoleRecursive},
				{ID: "plain", Role: graph.RoleHidden},
			})
			if err := g.SetActivation("h", 0.4); err != nil {
				t.Fatalf("SetActivation: %v", err)
			}

			eng := NewEngine(nil)
			if err := eng.Step(g, 0, tt.params); err != nil {
				t.Fatalf("Step: %v", err)
			}
			assertClose(t, "r", activation(t, g, "r"), tt.want)
			assertClose(t, "plain", activation(t, g, "plain"), math.Tanh(0.4))
		})
	}
}

func TestEngine_InputsIgnoreIncomingEdges(t *testing.T) {
	g := newGraph(t, []graph.NodeSpec{
		{ID: "i", Role: graph.RoleInput},
		{ID: "h", Role: graph.RoleHidden, Connections: []string{"i"}},
	})
	if err := g.SetActivation("h", 1); err != nil {
		t.Fatalf("SetActivation: %v", err)
	}

	eng := NewEngine(ConstantNoise(0), WithStimulus(StimulusFunc(func(uint64, float64) float64 {
		return 0.125
	})))
	if err := eng.Step(g, 0, DefaultParams()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	assertClose(t, "i", activation(t, g, "i"), 0.125)
}

func TestEngine_StimulusClamped(t *testing.T) {
	g := newGraph(t, []graph.NodeSpec{{ID: "i", Role: graph.RoleInput}})
	eng := NewEngine(nil, WithStimulus(StimulusFunc(func(uint64, float64) float64 {
		return 7
	})))
	if err := eng.Step(g, 0, DefaultParams()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	assertClose(t, "i", activation(t, g, "i"), 1)
}

func TestEngine_OneNoiseDrawPerInput(t *testing.T) {
	g := newGraph(t, []graph.NodeSpec{
		{ID: "i1", Role: graph.RoleInput},
		{ID: "h", Role: graph.RoleHidden},
		{ID: "i2", Role: graph.RoleInput},
	})
	noise := &countingNoise{}
	eng := NewEngine(noise)

	for i := uint64(0); i < 4; i++ {
		if err := eng.Step(g, i, DefaultParams()); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if noise.calls != 8 {
		t.Errorf("noise drawn %d times, want 8", noise.calls)
	}
}

func TestEngine_SeededDeterminism(t *testing.T) {
	run := func() [][]float64 {
		g := newGraph(t, graph.DefaultTopology())
		eng := NewEngine(NewSeededNoise(42))
		var trace [][]float64
		for i := uint64(0); i < 100; i++ {
			if err := eng.Step(g, i, DefaultParams()); err != nil {
				t.Fatalf("Step: %v", err)
			}
			trace = append(trace, g.Activations())
		}
		return trace
	}

	a, b := run(), run()
	for tick := range a {
		for i := range a[tick] {
			if math.Float64bits(a[tick][i]) != math.Float64bits(b[tick][i]) {
				t.Fatalf("tick %d node %d differs: %v vs %v", tick, i, a[tick][i], b[tick][i])
			}
		}
	}
}

func TestEngine_ActivationsStayBounded(t *testing.T) {
	g := newGraph(t, graph.DefaultTopology())
	eng := NewEngine(NewSeededNoise(99))

	for i := uint64(0); i < 500; i++ {
		p := Params{RecursionDepth: int(i%5) + 1, IntrospectionRate: 0.1 + float64(i%10)*0.1}
		if err := eng.Step(g, i, p); err != nil {
			t.Fatalf("Step: %v", err)
		}
		for k, v := range g.Activations() {
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("tick %d node %d activation %v out of [0,1]", i, k, v)
			}
		}
	}
}

type countingNoise struct{ calls int }

func (c *countingNoise) Float64() float64 {
	c.calls++
	return 0
}
