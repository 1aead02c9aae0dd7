// Package simulation provides a multi-window test harness for validating
// the dynamics of the propagation engine end to end.
//
// The harness exercises the real Graph, Engine, Simulator, Driver and
// SQLite Recorder with no mocks. Scenarios are Go builders that construct a
// topology and run a sequence of tick windows, each with its own control
// parameters, capturing per-tick levels and activations for property-based
// assertions.
//
// Each test gets an isolated SQLite database via t.TempDir() and a
// sandboxed HOME to prevent touching user data.
//
// Usage:
//
//	func TestSensitivity(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name: "sensitivity",
//	        Windows: []simulation.Window{
//	            {Label: "low", Ticks: 25, Params: &simulation.LowParams},
//	            {Label: "high", Ticks: 25, Params: &simulation.HighParams},
//	        },
//	    })
//	    simulation.AssertGrowthNonDecreasing(t, result, 0, 1)
//	}
package simulation
