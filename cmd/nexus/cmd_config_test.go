package main

import (
	"strings"
	"testing"
)

func TestConfigSetGet(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if _, err := execute(t, "config", "set", "simulation.recursion_depth", "5"); err != nil {
		t.Fatalf("config set: %v", err)
	}

	out, err := execute(t, "config", "get", "simulation.recursion_depth")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != "simulation.recursion_depth = 5" {
		t.Errorf("config get = %q", out)
	}

	out, err = execute(t, "config", "get", "simulation.recursion_depth", "--json")
	if err != nil {
		t.Fatalf("config get --json: %v", err)
	}
	if v := decodeJSON(t, out)["value"]; v != float64(5) {
		t.Errorf("value = %v, want 5", v)
	}

	// The saved depth is picked up by run.
	out, err = execute(t, "run", "--ticks", "1", "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	params := decodeJSON(t, out)["status"].(map[string]interface{})["params"].(map[string]interface{})
	if params["recursion_depth"] != float64(5) {
		t.Errorf("run used depth %v, want 5", params["recursion_depth"])
	}
}

func TestConfigSetRejectsBadValues(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	tests := []struct {
		key, value string
	}{
		{"simulation.recursion_depth", "0"},
		{"simulation.introspection_rate", "1.5"},
		{"simulation.tick_interval", "soon"},
		{"logging.level", "loud"},
		{"no.such.key", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if _, err := execute(t, "config", "set", tt.key, tt.value); err == nil {
				t.Errorf("config set %s %s: expected error", tt.key, tt.value)
			}
		})
	}
}

func TestConfigList(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out, err := execute(t, "config", "list")
	if err != nil {
		t.Fatalf("config list: %v", err)
	}
	for _, want := range []string{"simulation.recursion_depth:", "server.addr:", "recorder.path:", "(not set)"} {
		if !strings.Contains(out, want) {
			t.Errorf("config list missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "config", "get", "bogus"); err == nil {
		t.Error("expected error for unknown key")
	}
}
