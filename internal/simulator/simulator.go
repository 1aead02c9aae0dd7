// Package simulator owns a graph, the propagation engine and the metric
// reporter, and exposes the host-facing control surface: start, pause,
// reset, tick and the two control parameters.
//
// A Simulator is not safe for concurrent use. Hosts that tick from a timer
// and accept commands from elsewhere must serialize calls themselves; the
// scheduler package does that.
package simulator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/logging"
	"github.com/nvandessel/nexus/internal/propagation"
	"github.com/nvandessel/nexus/internal/reporter"
)

// State is the run state of a Simulator.
type State int

const (
	// Idle ignores ticks. It is the initial state.
	Idle State = iota
	// Running advances the graph on every tick.
	Running
)

// String returns "idle" or "running".
func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "running":
		*s = Running
	case "idle":
		*s = Idle
	default:
		return fmt.Errorf("unknown simulation state %q", text)
	}
	return nil
}

// Simulator is the simulation state.
type Simulator struct {
	graph    *graph.Graph
	engine   *propagation.Engine
	reporter *reporter.Reporter
	params   propagation.Params
	running  bool

	logger  *slog.Logger
	tickLog *logging.TickLogger
}

// Option configures a Simulator.
type Option func(*config)

type config struct {
	params   propagation.Params
	logger   *slog.Logger
	tickLog  *logging.TickLogger
	stimulus propagation.Stimulus
}

// WithParams sets the initial control parameters. They are clamped.
func WithParams(p propagation.Params) Option {
	return func(c *config) { c.params = p }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTickLogger sets the JSONL tick trace. nil disables it.
func WithTickLogger(tl *logging.TickLogger) Option {
	return func(c *config) { c.tickLog = tl }
}

// WithStimulus replaces the input stimulus function.
func WithStimulus(s propagation.Stimulus) Option {
	return func(c *config) { c.stimulus = s }
}

// New creates an Idle simulator over g. noise feeds the input stimulus;
// pass a seeded source for reproducible runs. A nil noise source yields
// zero noise.
func New(g *graph.Graph, noise propagation.NoiseSource, opts ...Option) *Simulator {
	cfg := config{
		params: propagation.DefaultParams(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var engineOpts []propagation.Option
	if cfg.stimulus != nil {
		engineOpts = append(engineOpts, propagation.WithStimulus(cfg.stimulus))
	}

	return &Simulator{
		graph:    g,
		engine:   propagation.NewEngine(noise, engineOpts...),
		reporter: reporter.New(),
		params:   cfg.params.Clamp(),
		logger:   cfg.logger,
		tickLog:  cfg.tickLog,
	}
}

// Start moves to Running. Starting a running simulator is a no-op.
func (s *Simulator) Start() {
	if s.running {
		return
	}
	s.running = true
	s.logger.Info("simulation started", "iteration", s.reporter.Iterations())
	s.tickLog.Log(map[string]any{"event": "start", "iteration": s.reporter.Iterations()})
}

// Pause moves to Idle. Pausing an idle simulator is a no-op.
func (s *Simulator) Pause() {
	if !s.running {
		return
	}
	s.running = false
	s.logger.Info("simulation paused", "iteration", s.reporter.Iterations())
	s.tickLog.Log(map[string]any{"event": "pause", "iteration": s.reporter.Iterations()})
}

// Running reports whether ticks advance the graph.
func (s *Simulator) Running() bool {
	return s.running
}

// State returns Idle or Running.
func (s *Simulator) State() State {
	if s.running {
		return Running
	}
	return Idle
}

// Reset zeroes all activations, the iteration counter and the published
// level. Topology, parameters and the run state are kept.
func (s *Simulator) Reset() {
	s.reporter.Reset(s.graph)
	s.logger.Info("simulation reset", "running", s.running)
	s.tickLog.Log(map[string]any{"event": "reset", "running": s.running})
}

// Tick advances the graph by one step when Running and reports whether it
// did. While Idle it changes nothing and returns false.
func (s *Simulator) Tick() (bool, error) {
	if !s.running {
		return false, nil
	}
	if err := s.engine.Step(s.graph, s.reporter.Iterations(), s.params); err != nil {
		return false, err
	}
	level := s.reporter.Publish(s.graph)

	if s.logger.Enabled(context.Background(), logging.LevelTrace) || s.tickLog != nil {
		s.traceTick(level)
	}
	return true, nil
}

func (s *Simulator) traceTick(level float64) {
	ev := logging.TickEvent{
		Iteration:         s.reporter.Iterations(),
		Level:             level,
		ActiveNodes:       reporter.ActiveNodeCount(s.graph, reporter.DefaultActiveThreshold),
		RecursionDepth:    s.params.RecursionDepth,
		IntrospectionRate: s.params.IntrospectionRate,
	}
	if s.tickLog.Verbose() {
		ev.Activations = s.activationMap()
	}
	s.tickLog.LogTick(ev)
	s.logger.Log(context.Background(), logging.LevelTrace, "tick",
		"iteration", ev.Iteration,
		"level", ev.Level,
		"active_nodes", ev.ActiveNodes)
}

func (s *Simulator) activationMap() map[string]float64 {
	ids := s.graph.IDs()
	out := make(map[string]float64, len(ids))
	for i, id := range ids {
		out[id] = s.graph.ActivationAt(i)
	}
	return out
}

// SetRecursionDepth clamps d to [1,5]. It takes effect on the next tick.
func (s *Simulator) SetRecursionDepth(d int) {
	s.params.RecursionDepth = propagation.ClampDepth(d)
}

// SetIntrospectionRate clamps r to [0.1,1.0]. It takes effect on the next
// tick.
func (s *Simulator) SetIntrospectionRate(r float64) {
	s.params.IntrospectionRate = propagation.ClampRate(r)
}

// SetParams sets both control parameters at once.
func (s *Simulator) SetParams(p propagation.Params) {
	s.params = p.Clamp()
}

// Params returns the current control parameters.
func (s *Simulator) Params() propagation.Params {
	return s.params
}

// PublishedLevel returns the level computed by the last tick, in [0,100].
func (s *Simulator) PublishedLevel() float64 {
	return s.reporter.PublishedLevel()
}

// IterationCount returns the number of ticks since construction or the
// last reset.
func (s *Simulator) IterationCount() uint64 {
	return s.reporter.Iterations()
}

// ActiveNodeCount counts nodes above reporter.DefaultActiveThreshold.
func (s *Simulator) ActiveNodeCount() int {
	return reporter.ActiveNodeCount(s.graph, reporter.DefaultActiveThreshold)
}

// ActiveNodeCountAbove counts nodes with activation strictly greater than
// threshold.
func (s *Simulator) ActiveNodeCountAbove(threshold float64) int {
	return reporter.ActiveNodeCount(s.graph, threshold)
}

// ActivationOf returns the activation of node id.
func (s *Simulator) ActivationOf(id string) (float64, error) {
	return s.graph.ActivationOf(id)
}

// Snapshot returns a copy of every node's state.
func (s *Simulator) Snapshot() []graph.NodeState {
	return s.graph.Snapshot()
}

// Topology returns the node specs the simulator was built from.
func (s *Simulator) Topology() []graph.NodeSpec {
	return s.graph.Topology()
}

// Status is a point-in-time summary for hosts.
type Status struct {
	State          State              `json:"state"`
	Running        bool               `json:"running"`
	Iteration      uint64             `json:"iteration"`
	Level          float64            `json:"level"`
	Params         propagation.Params `json:"params"`
	ActiveNodes    int                `json:"active_nodes"`
	TotalNodes     int                `json:"total_nodes"`
	MeanActivation float64            `json:"mean_activation"`
}

// Status returns the current summary.
func (s *Simulator) Status() Status {
	return Status{
		State:          s.State(),
		Running:        s.running,
		Iteration:      s.reporter.Iterations(),
		Level:          s.reporter.PublishedLevel(),
		Params:         s.params,
		ActiveNodes:    s.ActiveNodeCount(),
		TotalNodes:     s.graph.Len(),
		MeanActivation: reporter.MeanActivation(s.graph),
	}
}
