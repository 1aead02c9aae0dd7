package graph

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestNew_DefaultTopology(t *testing.T) {
	g, err := New(DefaultTopology())
	if err != nil {
		t.Fatalf("New(DefaultTopology()): %v", err)
	}

	if g.Len() != 10 {
		t.Errorf("Len() = %d, want 10", g.Len())
	}
	if g.EdgeCount() != 19 {
		t.Errorf("EdgeCount() = %d, want 19", g.EdgeCount())
	}

	for _, id := range g.IDs() {
		act, err := g.ActivationOf(id)
		if err != nil {
			t.Fatalf("ActivationOf(%s): %v", id, err)
		}
		if act != 0 {
			t.Errorf("initial activation of %s = %f, want 0", id, act)
		}
	}
}

func TestNew_Empty(t *testing.T) {
	g, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil): %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}
	if len(g.Snapshot()) != 0 {
		t.Error("expected empty snapshot")
	}
}

func TestNew_InvalidTopology(t *testing.T) {
	tests := []struct {
		name      string
		specs     []NodeSpec
		wantIssue string
	}{
		{
			name: "dangling edge",
			specs: []NodeSpec{
				{ID: "a", Role: RoleInput, Connections: []string{"missing"}},
			},
			wantIssue: "dangling",
		},
		{
			name: "duplicate id",
			specs: []NodeSpec{
				{ID: "a", Role: RoleInput},
				{ID: "a", Role: RoleHidden},
			},
			wantIssue: "duplicate-id",
		},
		{
			name: "empty id",
			specs: []NodeSpec{
				{ID: "", Role: RoleInput},
			},
			wantIssue: "empty-id",
		},
		{
			name: "unknown role",
			specs: []NodeSpec{
				{ID: "a", Role: Role(42)},
			},
			wantIssue: "unknown-role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.specs)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if g != nil {
				t.Error("expected nil graph on error")
			}
			if !errors.Is(err, ErrInvalidTopology) {
				t.Errorf("errors.Is(err, ErrInvalidTopology) = false for %v", err)
			}
			var topoErr *InvalidTopologyError
			if !errors.As(err, &topoErr) {
				t.Fatalf("expected *InvalidTopologyError, got %T", err)
			}
			found := false
			for _, issue := range topoErr.Issues {
				if issue.Issue == tt.wantIssue {
					found = true
				}
			}
			if !found {
				t.Errorf("issues %v do not include %q", topoErr.Issues, tt.wantIssue)
			}
		})
	}
}

func TestNew_CollectsAllIssues(t *testing.T) {
	_, err := New([]NodeSpec{
		{ID: "a", Role: RoleInput, Connections: []string{"x", "y"}},
		{ID: "a", Role: RoleHidden},
	})
	var topoErr *InvalidTopologyError
	if !errors.As(err, &topoErr) {
		t.Fatalf("expected *InvalidTopologyError, got %v", err)
	}
	if len(topoErr.Issues) != 3 {
		t.Errorf("expected 3 issues, got %d: %v", len(topoErr.Issues), topoErr.Issues)
	}
}

func TestUnknownNode(t *testing.T) {
	g, err := New(DefaultTopology())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := g.ActivationOf("nope"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("ActivationOf: expected ErrUnknownNode, got %v", err)
	}
	if err := g.SetActivation("nope", 0.5); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("SetActivation: expected ErrUnknownNode, got %v", err)
	}
	if _, err := g.IncomingActivations("nope"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("IncomingActivations: expected ErrUnknownNode, got %v", err)
	}
	if _, err := g.Role("nope"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Role: expected ErrUnknownNode, got %v", err)
	}

	var unk *UnknownNodeError
	_, err = g.ActivationOf("nope")
	if !errors.As(err, &unk) || unk.ID != "nope" {
		t.Errorf("expected UnknownNodeError{ID: nope}, got %v", err)
	}
}

func TestSetActivation_Clamps(t *testing.T) {
	g, err := New([]NodeSpec{{ID: "a", Role: RoleHidden}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		in   float64
		want float64
	}{
		{0.42, 0.42},
		{-0.5, 0},
		{1.7, 1},
		{math.Inf(1), 1},
		{math.Inf(-1), 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if err := g.SetActivation("a", tt.in); err != nil {
			t.Fatalf("SetActivation(%v): %v", tt.in, err)
		}
		got, _ := g.ActivationOf("a")
		if got != tt.want {
			t.Errorf("SetActivation(%v) stored %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIncomingActivations_ConstructionOrder(t *testing.T) {
	g, err := New(DefaultTopology())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Distinct values so order is observable.
	values := map[string]float64{"h1": 0.1, "h2": 0.2, "h3": 0.3, "r1": 0.4, "r2": 0.5}
	for id, v := range values {
		if err := g.SetActivation(id, v); err != nil {
			t.Fatalf("SetActivation(%s): %v", id, err)
		}
	}

	tests := []struct {
		id   string
		want []float64
	}{
		{"r1", []float64{0.1, 0.2, 0.5}}, // h1, h2, r2
		{"h1", []float64{0, 0, 0.3, 0.4}},  // i1, i2, h3, r1
		{"o1", []float64{0.1, 0.3}},        // h1, h3
		{"i1", []float64{}},
	}
	for _, tt := range tests {
		got, err := g.IncomingActivations(tt.id)
		if err != nil {
			t.Fatalf("IncomingActivations(%s): %v", tt.id, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("IncomingActivations(%s) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestNew_DuplicateConnectionCountsOnce(t *testing.T) {
	g, err := New([]NodeSpec{
		{ID: "a", Role: RoleInput, Connections: []string{"b", "b"}},
		{ID: "b", Role: RoleHidden},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in, _ := g.IncomingActivations("b")
	if len(in) != 1 {
		t.Errorf("expected 1 incoming edge, got %d", len(in))
	}
}

func TestNew_SelfLoop(t *testing.T) {
	g, err := New([]NodeSpec{{ID: "r", Role: RoleRecursive, Connections: []string{"r"}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in, _ := g.IncomingActivations("r")
	if len(in) != 1 {
		t.Errorf("expected self-loop to be one incoming edge, got %d", len(in))
	}
}

func TestCommit(t *testing.T) {
	g, err := New([]NodeSpec{{ID: "a"}, {ID: "b"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := g.Commit([]float64{0.25, 3}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := g.Activations(); !reflect.DeepEqual(got, []float64{0.25, 1}) {
		t.Errorf("Activations() = %v, want [0.25 1]", got)
	}

	if err := g.Commit([]float64{0.1}); err == nil {
		t.Error("expected length mismatch error")
	}

	g.ResetActivations()
	if got := g.Activations(); !reflect.DeepEqual(got, []float64{0, 0}) {
		t.Errorf("after reset Activations() = %v", got)
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	g, err := New(DefaultTopology())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap := g.Snapshot()
	snap[0].Activation = 0.9
	snap[0].Connections[0] = "mutated"

	if act, _ := g.ActivationOf("i1"); act != 0 {
		t.Errorf("snapshot mutation leaked into graph activation: %f", act)
	}
	if g.Snapshot()[0].Connections[0] != "h1" {
		t.Error("snapshot mutation leaked into topology")
	}
	if snap[0].Role != RoleInput || snap[0].Position.X != 50 {
		t.Errorf("unexpected snapshot entry: %+v", snap[0])
	}
}
