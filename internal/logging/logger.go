// Package logging provides leveled logging and tick tracing for nexus.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TickLogger for structured JSONL tick traces (.nexus/ticks.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level the tick
// trace also carries every node's activation.
const LevelTrace = slog.LevelDebug - 4

// TickFile is the name of the JSONL trace written by TickLogger.
const TickFile = "ticks.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TickEvent is one line of the tick trace.
type TickEvent struct {
	Iteration         uint64             `json:"iteration"`
	Level             float64            `json:"level"`
	ActiveNodes       int                `json:"active_nodes"`
	RecursionDepth    int                `json:"recursion_depth"`
	IntrospectionRate float64            `json:"introspection_rate"`
	Activations       map[string]float64 `json:"activations,omitempty"`
}

// TickLogger writes tick events and control events to a JSONL file.
// It is safe for concurrent use. A nil TickLogger is safe to use;
// all methods are no-ops on nil receiver.
type TickLogger struct {
	mu      sync.Mutex
	file    *os.File
	verbose bool
}

// NewTickLogger creates a tick logger writing to dir/ticks.jsonl.
// At "info" level it returns nil and creates nothing. At "debug" the file
// receives one summary line per tick; at "trace" each line also carries
// the full activation map.
// Returns nil if the file cannot be opened.
func NewTickLogger(dir string, level string) *TickLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, TickFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &TickLogger{file: f, verbose: lvl <= LevelTrace}
}

// Verbose reports whether the logger wants per-node activations. Callers
// can skip building the activation map when it is false.
func (tl *TickLogger) Verbose() bool {
	return tl != nil && tl.verbose
}

// LogTick writes ev as a single "tick" line. Activations are dropped
// unless the logger is verbose.
func (tl *TickLogger) LogTick(ev TickEvent) {
	if tl == nil {
		return
	}
	if !tl.verbose {
		ev.Activations = nil
	}
	tl.write(struct {
		Time  string `json:"time"`
		Event string `json:"event"`
		TickEvent
	}{
		Time:      now(),
		Event:     "tick",
		TickEvent: ev,
	})
}

// Log writes a control event such as a start, pause or reset. A "time"
// field is added automatically; the caller's map is not mutated.
func (tl *TickLogger) Log(event map[string]any) {
	if tl == nil {
		return
	}
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = now()
	tl.write(entry)
}

func (tl *TickLogger) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	_, _ = tl.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (tl *TickLogger) Close() {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file != nil {
		tl.file.Close()
		tl.file = nil
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
