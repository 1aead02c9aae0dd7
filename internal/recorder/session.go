package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/nexus/internal/logging"
	"github.com/nvandessel/nexus/internal/scheduler"
)

// Session records the frames of one run. It implements scheduler.Observer.
type Session struct {
	rec           *Recorder
	runID         string
	snapshotEvery int
	logger        *slog.Logger
	ctx           context.Context

	mu       sync.Mutex
	failures int
	epoch    int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSnapshotEvery records every node's state on ticks whose iteration is
// a multiple of n. 0 disables node snapshots.
func WithSnapshotEvery(n int) SessionOption {
	return func(s *Session) {
		if n >= 0 {
			s.snapshotEvery = n
		}
	}
}

// WithSessionLogger sets the logger used for write failures.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession starts a run and returns a Session recording into it. ctx
// bounds every write the session makes.
func (r *Recorder) NewSession(ctx context.Context, run Run, opts ...SessionOption) (*Session, error) {
	id, err := r.StartRun(ctx, run)
	if err != nil {
		return nil, err
	}
	s := &Session{
		rec:    r,
		runID:  id,
		logger: logging.Discard(),
		ctx:    ctx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunID returns the id of the run being recorded.
func (s *Session) RunID() string {
	return s.runID
}

// Failures returns how many writes have failed so far.
func (s *Session) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Epoch returns the number of resets recorded so far.
func (s *Session) Epoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// OnFrame records a metrics row for every tick and a node snapshot for
// ticks on the snapshot cadence. A reset frame opens a new epoch and
// records the zeroed nodes at iteration 0 of it. Write errors are logged
// and counted, never returned, so a full disk cannot stop the simulation.
func (s *Session) OnFrame(f scheduler.Frame) {
	switch f.Event {
	case scheduler.EventTick:
		st := f.Status
		epoch := s.Epoch()
		err := s.rec.RecordMetric(s.ctx, Metric{
			RunID:          s.runID,
			Epoch:          epoch,
			Iteration:      st.Iteration,
			Consciousness:  st.Level,
			Activation:     st.MeanActivation,
			Introspection:  st.Params.IntrospectionRate,
			RecursionDepth: st.Params.RecursionDepth,
			ActiveNodes:    st.ActiveNodes,
			RecordedAt:     f.At,
		})
		s.check(err, "metric", st.Iteration)

		if s.snapshotEvery > 0 && st.Iteration%uint64(s.snapshotEvery) == 0 {
			key := SnapshotKey{Epoch: epoch, Iteration: st.Iteration}
			s.check(s.rec.RecordNodes(s.ctx, s.runID, key, f.Nodes, f.At), "nodes", st.Iteration)
		}
	case scheduler.EventReset:
		s.mu.Lock()
		s.epoch++
		epoch := s.epoch
		s.mu.Unlock()
		if s.snapshotEvery > 0 {
			key := SnapshotKey{Epoch: epoch}
			s.check(s.rec.RecordNodes(s.ctx, s.runID, key, f.Nodes, f.At), "nodes", 0)
		}
	}
}

// Close stamps the end of the run.
func (s *Session) Close() error {
	return s.rec.EndRun(context.WithoutCancel(s.ctx), s.runID, time.Now())
}

func (s *Session) check(err error, what string, iteration uint64) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
	s.logger.Warn("recording failed", "run", s.runID, "what", what, "iteration", iteration, "error", err)
}
