package simulation

import (
	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/propagation"
	"github.com/nvandessel/nexus/internal/scheduler"
	"github.com/nvandessel/nexus/internal/simulator"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string

	// Topology defaults to graph.DefaultTopology when nil.
	Topology []graph.NodeSpec

	// Params are applied before the first window. Zero means the defaults.
	Params propagation.Params

	// Noise defaults to ConstantNoise(0) so trajectories are exact.
	Noise propagation.NoiseSource

	// Seed is stored on the recorded run for reference.
	Seed int64

	// SnapshotEvery is the node snapshot cadence of the recorder. 0 keeps
	// only metric rows.
	SnapshotEvery int

	Windows []Window

	// BeforeWindow, when non-nil, is called before each window executes.
	// Use it to poke the driver between windows (e.g. pause or reset).
	BeforeWindow func(index int, d *scheduler.Driver)
}

// Window is a run of consecutive ticks under fixed parameters.
type Window struct {
	Label string
	Ticks int

	// Params, when non-nil, are applied before the window's first tick.
	Params *propagation.Params
}

// TickResult captures the state after one committed tick.
type TickResult struct {
	Iteration   uint64
	Level       float64
	ActiveNodes int
	Activations map[string]float64
}

// WindowResult captures the outcome of a single window.
type WindowResult struct {
	Index      int
	Label      string
	Params     propagation.Params
	StartLevel float64
	Ticks      []TickResult
}

// EndLevel returns the level after the last tick, or StartLevel for a
// window that did not advance.
func (w WindowResult) EndLevel() float64 {
	if len(w.Ticks) == 0 {
		return w.StartLevel
	}
	return w.Ticks[len(w.Ticks)-1].Level
}

// Growth returns the mean per-tick change of the level over the window.
func (w WindowResult) Growth() float64 {
	if len(w.Ticks) == 0 {
		return 0
	}
	return (w.EndLevel() - w.StartLevel) / float64(len(w.Ticks))
}

// SimulationResult captures all windows and the final state.
type SimulationResult struct {
	Windows []WindowResult
	Initial []graph.NodeState
	Final   simulator.Status
	Nodes   []graph.NodeState
	RunID   string
}

// AllTicks returns every tick across windows in order.
func (r SimulationResult) AllTicks() []TickResult {
	var out []TickResult
	for _, w := range r.Windows {
		out = append(out, w.Ticks...)
	}
	return out
}
