package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Trace", "Trace", LevelTrace},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
	}{
		{"info filters debug", "info", false},
		{"debug passes debug", "debug", true},
		{"trace passes debug", "trace", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("tick committed")
			got := strings.Contains(buf.String(), "tick committed")
			if got != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", got, tt.logAtDebug, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "activations")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE label, got %q", buf.String())
	}
}

func TestNewTickLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "info")
	if tl != nil {
		t.Fatal("expected nil TickLogger at info level")
	}

	tl.LogTick(TickEvent{Iteration: 1})
	tl.Log(map[string]any{"event": "start"})
	if tl.Verbose() {
		t.Error("nil logger reports verbose")
	}

	if _, err := os.Stat(filepath.Join(dir, TickFile)); err == nil {
		t.Error("ticks.jsonl should not exist at info level")
	}
}

func readLines(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, TickFile))
	if err != nil {
		t.Fatalf("reading %s: %v", TickFile, err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("parsing line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestTickLogger_DebugDropsActivations(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")
	defer tl.Close()

	if tl.Verbose() {
		t.Error("debug logger should not be verbose")
	}
	tl.LogTick(TickEvent{
		Iteration:         7,
		Level:             42.5,
		ActiveNodes:       6,
		RecursionDepth:    3,
		IntrospectionRate: 0.7,
		Activations:       map[string]float64{"r1": 0.4},
	})

	lines := readLines(t, dir)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	entry := lines[0]
	if entry["event"] != "tick" {
		t.Errorf("event = %v, want tick", entry["event"])
	}
	if entry["iteration"] != float64(7) {
		t.Errorf("iteration = %v, want 7", entry["iteration"])
	}
	if entry["level"] != 42.5 {
		t.Errorf("level = %v, want 42.5", entry["level"])
	}
	if _, ok := entry["activations"]; ok {
		t.Error("activations should be omitted at debug level")
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected time field")
	}
}

func TestTickLogger_TraceKeepsActivations(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "trace")
	defer tl.Close()

	if !tl.Verbose() {
		t.Error("trace logger should be verbose")
	}
	tl.LogTick(TickEvent{Iteration: 1, Activations: map[string]float64{"r1": 0.25}})

	entry := readLines(t, dir)[0]
	acts, ok := entry["activations"].(map[string]any)
	if !ok {
		t.Fatalf("activations missing: %v", entry)
	}
	if acts["r1"] != 0.25 {
		t.Errorf("r1 = %v, want 0.25", acts["r1"])
	}
}

func TestTickLogger_ControlEvents(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")
	defer tl.Close()

	event := map[string]any{"event": "reset", "iteration": 12}
	tl.Log(event)
	tl.Log(map[string]any{"event": "start"})

	if _, hasTime := event["time"]; hasTime {
		t.Error("Log() mutated caller's map")
	}

	lines := readLines(t, dir)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["event"] != "reset" || lines[1]["event"] != "start" {
		t.Errorf("unexpected events: %v, %v", lines[0]["event"], lines[1]["event"])
	}
}

func TestTickLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")

	tl.LogTick(TickEvent{Iteration: 1})
	tl.Close()
	tl.LogTick(TickEvent{Iteration: 2})
	tl.Close()

	if got := len(readLines(t, dir)); got != 1 {
		t.Errorf("expected 1 line after close, got %d", got)
	}
}

func TestNewTickLogger_CreatesDirWithPermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".nexus", "nested")
	tl := NewTickLogger(dir, "debug")
	if tl == nil {
		t.Fatal("expected non-nil TickLogger when dir needs creation")
	}
	defer tl.Close()

	info, err := os.Stat(filepath.Join(dir, TickFile))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
