package simulation

import (
	"context"
	"math"
	"testing"

	"github.com/nvandessel/nexus/internal/recorder"
)

// AssertIterationCount asserts the final iteration counter.
func AssertIterationCount(t *testing.T, result SimulationResult, want uint64) {
	t.Helper()
	if result.Final.Iteration != want {
		t.Errorf("AssertIterationCount: iteration = %d, want %d", result.Final.Iteration, want)
	}
}

// AssertLevelBounded asserts that every published level is finite and in
// [0,100].
func AssertLevelBounded(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, tr := range result.AllTicks() {
		if math.IsNaN(tr.Level) || math.IsInf(tr.Level, 0) || tr.Level < 0 || tr.Level > 100 {
			t.Errorf("AssertLevelBounded: iteration %d: level %v out of [0,100]", tr.Iteration, tr.Level)
		}
	}
	if l := result.Final.Level; math.IsNaN(l) || l < 0 || l > 100 {
		t.Errorf("AssertLevelBounded: final level %v out of [0,100]", l)
	}
}

// AssertActivationsBounded asserts that every activation after every tick
// is in [0,1].
func AssertActivationsBounded(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, tr := range result.AllTicks() {
		for id, a := range tr.Activations {
			if math.IsNaN(a) || a < 0 || a > 1 {
				t.Errorf("AssertActivationsBounded: iteration %d: %s = %v out of [0,1]", tr.Iteration, id, a)
			}
		}
	}
}

// AssertNodeConstant asserts that node id holds want after every tick.
func AssertNodeConstant(t *testing.T, result SimulationResult, id string, want float64) {
	t.Helper()
	for _, tr := range result.AllTicks() {
		got, ok := tr.Activations[id]
		if !ok {
			t.Errorf("AssertNodeConstant: iteration %d: node %s missing", tr.Iteration, id)
			return
		}
		if got != want {
			t.Errorf("AssertNodeConstant: iteration %d: %s = %v, want %v", tr.Iteration, id, got, want)
		}
	}
}

// AssertGrowthNonDecreasing asserts that window later grows at least as
// fast as window earlier.
func AssertGrowthNonDecreasing(t *testing.T, result SimulationResult, earlier, later int) {
	t.Helper()
	a, b := result.Windows[earlier], result.Windows[later]
	if b.Growth() < a.Growth() {
		t.Errorf("AssertGrowthNonDecreasing: window %q growth %.6f < window %q growth %.6f",
			b.Label, b.Growth(), a.Label, a.Growth())
	}
}

// AssertSameTrajectory asserts that two results saw identical levels and
// activations tick by tick.
func AssertSameTrajectory(t *testing.T, a, b SimulationResult) {
	t.Helper()
	ta, tb := a.AllTicks(), b.AllTicks()
	if len(ta) != len(tb) {
		t.Fatalf("AssertSameTrajectory: %d ticks vs %d", len(ta), len(tb))
	}
	for i := range ta {
		if ta[i].Level != tb[i].Level {
			t.Errorf("AssertSameTrajectory: tick %d: level %v vs %v", i+1, ta[i].Level, tb[i].Level)
		}
		for id, v := range ta[i].Activations {
			if tb[i].Activations[id] != v {
				t.Errorf("AssertSameTrajectory: tick %d: %s %v vs %v", i+1, id, v, tb[i].Activations[id])
			}
		}
	}
}

// AssertRecorded asserts that the recorder holds one metric row per tick
// for the run, matching the collected levels.
func AssertRecorded(t *testing.T, rec *recorder.Recorder, result SimulationResult) {
	t.Helper()
	metrics, err := rec.Metrics(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("AssertRecorded: Metrics: %v", err)
	}
	ticks := result.AllTicks()
	if len(metrics) != len(ticks) {
		t.Fatalf("AssertRecorded: %d metric rows, want %d", len(metrics), len(ticks))
	}
	for i, m := range metrics {
		if m.Iteration != ticks[i].Iteration || m.Consciousness != ticks[i].Level {
			t.Errorf("AssertRecorded: row %d = iteration %d level %v, want %d/%v",
				i, m.Iteration, m.Consciousness, ticks[i].Iteration, ticks[i].Level)
		}
	}

	run, err := rec.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("AssertRecorded: GetRun: %v", err)
	}
	if run.EndedAt == nil {
		t.Error("AssertRecorded: run was not ended")
	}
}
