package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.nexus/
// MUST be called for any test that loads config or opens a recorder.
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
	for _, key := range []string{"NEXUS_RECURSION_DEPTH", "NEXUS_INTROSPECTION_RATE", "NEXUS_SEED",
		"NEXUS_TOPOLOGY", "NEXUS_RECORD", "NEXUS_LOG_LEVEL", "NEXUS_TICK_INTERVAL", "NEXUS_ADDR", "NEXUS_SNAPSHOT_EVERY"} {
		t.Setenv(key, "")
	}
}

// execute runs the real root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCmd()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func decodeJSON(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	return m
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	rootCmd := newRootCmd()
	want := []string{"version", "run", "serve", "mcp-server", "graph", "topology", "runs", "config"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	for _, flag := range []string{"json", "root"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "nexus version "+version) {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	if got := decodeJSON(t, out)["version"]; got != version {
		t.Errorf("version = %v, want %s", got, version)
	}
}

func TestSimulationFlags(t *testing.T) {
	for _, c := range []string{"run", "serve", "mcp-server", "graph"} {
		rootCmd := newRootCmd()
		cmd, _, err := rootCmd.Find([]string{c})
		if err != nil {
			t.Fatalf("Find(%s): %v", c, err)
		}
		for _, flag := range []string{"depth", "rate", "seed", "topology"} {
			if cmd.Flags().Lookup(flag) == nil {
				t.Errorf("%s: missing --%s flag", c, flag)
			}
		}
	}
}

func TestValueOrDefault(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"empty string", "", "(not set)"},
		{"string", "info", "info"},
		{"int", 3, 3},
		{"bool", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valueOrDefault(tt.in, "(not set)"); got != tt.want {
				t.Errorf("valueOrDefault(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}
