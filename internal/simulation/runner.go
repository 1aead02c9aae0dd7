package simulation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/propagation"
	"github.com/nvandessel/nexus/internal/recorder"
	"github.com/nvandessel/nexus/internal/scheduler"
	"github.com/nvandessel/nexus/internal/simulator"
)

// Runner orchestrates multi-window simulation experiments against the real
// simulator and an isolated recorder.
type Runner struct {
	t   *testing.T
	rec *recorder.Recorder
}

// NewRunner creates a simulation runner with an isolated SQLite recorder
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	rec, err := recorder.Open(filepath.Join(tmpDir, recorder.DBFile))
	if err != nil {
		t.Fatalf("NewRunner: failed to open recorder: %v", err)
	}
	t.Cleanup(func() { rec.Close() })

	return &Runner{t: t, rec: rec}
}

// Recorder returns the runner's recorder for inspecting persisted runs.
func (r *Runner) Recorder() *recorder.Recorder {
	return r.rec
}

// tickCollector gathers tick frames for the current window.
type tickCollector struct {
	mu    sync.Mutex
	ticks []TickResult
}

func (c *tickCollector) OnFrame(f scheduler.Frame) {
	if f.Event != scheduler.EventTick {
		return
	}
	acts := make(map[string]float64, len(f.Nodes))
	for _, n := range f.Nodes {
		acts[n.ID] = n.Activation
	}
	c.mu.Lock()
	c.ticks = append(c.ticks, TickResult{
		Iteration:   f.Status.Iteration,
		Level:       f.Status.Level,
		ActiveNodes: f.Status.ActiveNodes,
		Activations: acts,
	})
	c.mu.Unlock()
}

func (c *tickCollector) take() []TickResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.ticks
	c.ticks = nil
	return out
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()

	// Phase 1: Build the graph and simulator.
	specs := scenario.Topology
	if specs == nil {
		specs = graph.DefaultTopology()
	}
	g, err := graph.New(specs)
	if err != nil {
		r.t.Fatalf("scenario %s: graph.New: %v", scenario.Name, err)
	}

	params := scenario.Params
	if params == (propagation.Params{}) {
		params = propagation.DefaultParams()
	}
	noise := scenario.Noise
	if noise == nil {
		noise = propagation.ConstantNoise(0)
	}
	sim := simulator.New(g, noise, simulator.WithParams(params))

	// Phase 2: Wire the recorder and the collector.
	topo, err := graph.MarshalTopology(specs)
	if err != nil {
		r.t.Fatalf("scenario %s: MarshalTopology: %v", scenario.Name, err)
	}
	session, err := r.rec.NewSession(ctx, recorder.Run{
		Seed:      scenario.Seed,
		Params:    sim.Params(),
		NodeCount: g.Len(),
		Topology:  string(topo),
	}, recorder.WithSnapshotEvery(scenario.SnapshotEvery))
	if err != nil {
		r.t.Fatalf("scenario %s: NewSession: %v", scenario.Name, err)
	}

	collector := &tickCollector{}
	driver := scheduler.NewDriver(sim,
		scheduler.WithObserver(session),
		scheduler.WithObserver(collector),
	)
	initial := driver.Frame().Nodes

	// Phase 3: Run windows.
	driver.Start()
	windows := make([]WindowResult, len(scenario.Windows))
	for i, w := range scenario.Windows {
		if scenario.BeforeWindow != nil {
			scenario.BeforeWindow(i, driver)
		}
		if w.Params != nil {
			driver.SetParams(*w.Params)
		}
		st := driver.Status()
		for n := 0; n < w.Ticks; n++ {
			if _, err := driver.Tick(); err != nil {
				r.t.Fatalf("scenario %s: window %d tick %d: %v", scenario.Name, i, n+1, err)
			}
		}
		windows[i] = WindowResult{
			Index:      i,
			Label:      w.Label,
			Params:     st.Params,
			StartLevel: st.Level,
			Ticks:      collector.take(),
		}
	}

	if err := session.Close(); err != nil {
		r.t.Fatalf("scenario %s: closing session: %v", scenario.Name, err)
	}
	if n := session.Failures(); n > 0 {
		r.t.Fatalf("scenario %s: %d recorder writes failed", scenario.Name, n)
	}

	fr := driver.Frame()
	return SimulationResult{
		Windows: windows,
		Initial: initial,
		Final:   fr.Status,
		Nodes:   fr.Nodes,
		RunID:   session.RunID(),
	}
}
