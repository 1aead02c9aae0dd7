// Package scheduler drives a simulator from a fixed-period timer and
// serializes host commands with ticks. It is the only place where the
// simulation is touched from more than one goroutine.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/logging"
	"github.com/nvandessel/nexus/internal/propagation"
	"github.com/nvandessel/nexus/internal/simulator"
)

// DefaultInterval is the tick cadence used when none is configured.
const DefaultInterval = 100 * time.Millisecond

// Event names the cause of a Frame.
type Event string

const (
	EventTick   Event = "tick"
	EventStart  Event = "start"
	EventPause  Event = "pause"
	EventReset  Event = "reset"
	EventParams Event = "params"

	// EventSnapshot marks a frame read on demand rather than pushed.
	EventSnapshot Event = "snapshot"
)

// Frame is an immutable view of the simulation after an event. Nodes is a
// copy; observers may keep it.
type Frame struct {
	Event  Event             `json:"event"`
	At     time.Time         `json:"at"`
	Status simulator.Status  `json:"status"`
	Nodes  []graph.NodeState `json:"nodes"`
}

// Observer receives frames in the order they were produced. OnFrame runs
// on the goroutine that caused the event and must not call back into the
// Driver.
type Observer interface {
	OnFrame(Frame)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Frame)

// OnFrame implements Observer.
func (f ObserverFunc) OnFrame(fr Frame) { f(fr) }

// Driver owns a Simulator and is safe for concurrent use.
type Driver struct {
	mu       sync.Mutex
	sim      *simulator.Simulator
	interval time.Duration
	logger   *slog.Logger

	// notifyMu is taken before mu is released so observers see frames in
	// event order without running under mu.
	notifyMu  sync.Mutex
	observers []Observer
	nowFunc   func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithInterval sets the tick period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.interval = d
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(dr *Driver) {
		if l != nil {
			dr.logger = l
		}
	}
}

// WithObserver registers an observer at construction.
func WithObserver(o Observer) Option {
	return func(dr *Driver) {
		if o != nil {
			dr.observers = append(dr.observers, o)
		}
	}
}

// NewDriver wraps sim. The driver does not start ticking until Run.
func NewDriver(sim *simulator.Simulator, opts ...Option) *Driver {
	d := &Driver{
		sim:      sim,
		interval: DefaultInterval,
		logger:   logging.Discard(),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe adds an observer. Frames produced after Subscribe returns are
// delivered to it.
func (d *Driver) Subscribe(o Observer) {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	d.observers = append(d.observers, o)
}

// Interval returns the tick period.
func (d *Driver) Interval() time.Duration {
	return d.interval
}

// Run ticks the simulator every interval until ctx is cancelled. Ticks
// while the simulator is Idle do nothing. Returns nil on cancellation.
func (d *Driver) Run(ctx context.Context) error {
	return d.run(ctx, 0)
}

// RunTicks is Run that returns after exactly n ticks have been committed by
// its own timer. Ticks made through Tick by other callers are not counted.
func (d *Driver) RunTicks(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	return d.run(ctx, n)
}

// run ticks until ctx is done or, when limit > 0, until limit ticks advanced.
func (d *Driver) run(ctx context.Context, limit int) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Debug("driver started", "interval", d.interval, "limit", limit)
	committed := 0
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("driver stopped", "reason", ctx.Err(), "ticks", committed)
			return nil
		case <-ticker.C:
			advanced, err := d.Tick()
			if err != nil {
				return fmt.Errorf("driver tick: %w", err)
			}
			if !advanced {
				continue
			}
			committed++
			if limit > 0 && committed >= limit {
				d.logger.Debug("driver stopped", "reason", "tick limit", "ticks", committed)
				return nil
			}
		}
	}
}

// Tick advances the simulator once if it is Running and reports whether
// it did.
func (d *Driver) Tick() (bool, error) {
	d.mu.Lock()
	advanced, err := d.sim.Tick()
	if err != nil || !advanced {
		d.mu.Unlock()
		return advanced, err
	}
	d.publishLocked(d.frameLocked(EventTick))
	return true, nil
}

// Start moves the simulator to Running.
func (d *Driver) Start() simulator.Status {
	return d.command(EventStart, func(s *simulator.Simulator) { s.Start() })
}

// Pause moves the simulator to Idle.
func (d *Driver) Pause() simulator.Status {
	return d.command(EventPause, func(s *simulator.Simulator) { s.Pause() })
}

// Reset zeroes activations, the counter and the level.
func (d *Driver) Reset() simulator.Status {
	return d.command(EventReset, func(s *simulator.Simulator) { s.Reset() })
}

// SetRecursionDepth clamps and applies a new depth.
func (d *Driver) SetRecursionDepth(depth int) simulator.Status {
	return d.command(EventParams, func(s *simulator.Simulator) { s.SetRecursionDepth(depth) })
}

// SetIntrospectionRate clamps and applies a new rate.
func (d *Driver) SetIntrospectionRate(rate float64) simulator.Status {
	return d.command(EventParams, func(s *simulator.Simulator) { s.SetIntrospectionRate(rate) })
}

// SetParams clamps and applies both parameters in one step.
func (d *Driver) SetParams(p propagation.Params) simulator.Status {
	return d.command(EventParams, func(s *simulator.Simulator) { s.SetParams(p) })
}

// UpdateParams applies the supplied fields and keeps the others. Nil
// fields are left as they are at the time of the update.
func (d *Driver) UpdateParams(depth *int, rate *float64) simulator.Status {
	return d.command(EventParams, func(s *simulator.Simulator) {
		if depth != nil {
			s.SetRecursionDepth(*depth)
		}
		if rate != nil {
			s.SetIntrospectionRate(*rate)
		}
	})
}

// Status returns the current summary.
func (d *Driver) Status() simulator.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sim.Status()
}

// Frame returns the current state as a frame without notifying observers.
func (d *Driver) Frame() Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameLocked(EventSnapshot)
}

// Topology returns the node specs of the simulated graph.
func (d *Driver) Topology() []graph.NodeSpec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sim.Topology()
}

// ActivationOf returns the activation of node id.
func (d *Driver) ActivationOf(id string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sim.ActivationOf(id)
}

func (d *Driver) command(ev Event, fn func(*simulator.Simulator)) simulator.Status {
	d.mu.Lock()
	fn(d.sim)
	fr := d.frameLocked(ev)
	d.publishLocked(fr)
	return fr.Status
}

func (d *Driver) frameLocked(ev Event) Frame {
	return Frame{
		Event:  ev,
		At:     d.nowFunc().UTC(),
		Status: d.sim.Status(),
		Nodes:  d.sim.Snapshot(),
	}
}

// publishLocked must be called with mu held; it releases mu.
func (d *Driver) publishLocked(fr Frame) {
	d.notifyMu.Lock()
	d.mu.Unlock()
	defer d.notifyMu.Unlock()
	for _, o := range d.observers {
		o.OnFrame(fr)
	}
}
