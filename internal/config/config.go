// Package config provides unified configuration loading for nexus.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/nexus/internal/propagation"
)

// DirName is the per-user and per-project directory nexus writes to.
const DirName = ".nexus"

// NexusConfig contains all nexus configuration settings.
type NexusConfig struct {
	// Simulation contains the control parameters and tick cadence.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Server contains settings for the HTTP control API.
	Server ServerConfig `json:"server" yaml:"server"`

	// Recorder contains settings for persisting run metrics.
	Recorder RecorderConfig `json:"recorder" yaml:"recorder"`

	// Logging contains settings for operational and tick logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures the simulator and its driver.
type SimulationConfig struct {
	// RecursionDepth is the initial recursion depth (1-5).
	RecursionDepth int `json:"recursion_depth" yaml:"recursion_depth"`

	// IntrospectionRate is the initial introspection rate (0.1-1.0).
	IntrospectionRate float64 `json:"introspection_rate" yaml:"introspection_rate"`

	// TickInterval is the period between ticks while running.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`

	// Seed seeds the stimulus noise. 0 picks a time-based seed.
	Seed int64 `json:"seed" yaml:"seed"`

	// Topology is a path to a YAML topology file. Empty uses the built-in
	// ten-node network. Supports ${VAR} syntax.
	Topology string `json:"topology,omitempty" yaml:"topology,omitempty"`
}

// Params returns the configured control parameters, clamped.
func (c SimulationConfig) Params() propagation.Params {
	return propagation.Params{
		RecursionDepth:    c.RecursionDepth,
		IntrospectionRate: c.IntrospectionRate,
	}.Clamp()
}

// ServerConfig configures the HTTP control API.
type ServerConfig struct {
	// Addr is the listen address. Defaults to localhost:7420.
	Addr string `json:"addr" yaml:"addr"`

	// AutoStart starts the simulation as soon as the server is up.
	AutoStart bool `json:"auto_start" yaml:"auto_start"`
}

// RecorderConfig configures the SQLite run recorder.
type RecorderConfig struct {
	// Enabled turns on recording for run and serve.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the database file. Empty means <root>/.nexus/runs.db.
	// Supports ${VAR} syntax.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// SnapshotEvery records every node's state every N ticks. 0 disables
	// node snapshots; metrics are recorded on every tick regardless.
	SnapshotEvery int `json:"snapshot_every" yaml:"snapshot_every"`
}

// LoggingConfig configures nexus's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables tick logging to .nexus/ticks.jsonl.
	// "trace" additionally includes every node's activation per tick.
	Level string `json:"level" yaml:"level"`
}

// Default returns a NexusConfig with sensible defaults.
func Default() *NexusConfig {
	p := propagation.DefaultParams()
	return &NexusConfig{
		Simulation: SimulationConfig{
			RecursionDepth:    p.RecursionDepth,
			IntrospectionRate: p.IntrospectionRate,
			TickInterval:      100 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr: "localhost:7420",
		},
		Recorder: RecorderConfig{
			SnapshotEvery: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns ~/.nexus/config.yaml.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.nexus/config.yaml -> environment variables
func Load() (*NexusConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*NexusConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Simulation.Topology = expandEnvVars(config.Simulation.Topology)
	config.Recorder.Path = expandEnvVars(config.Recorder.Path)

	return config, nil
}

// Save writes c to ~/.nexus/config.yaml.
func Save(c *NexusConfig) error {
	configPath, err := Path()
	if err != nil {
		return err
	}
	return SaveToFile(c, configPath)
}

// SaveToFile writes c as YAML to path, creating the parent directory.
func SaveToFile(c *NexusConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid. Control parameters
// outside their domain are reported even though the simulator clamps them.
func (c *NexusConfig) Validate() error {
	s := c.Simulation
	if s.RecursionDepth < propagation.MinRecursionDepth || s.RecursionDepth > propagation.MaxRecursionDepth {
		return fmt.Errorf("recursion_depth must be between %d and %d, got %d",
			propagation.MinRecursionDepth, propagation.MaxRecursionDepth, s.RecursionDepth)
	}
	if !(s.IntrospectionRate >= propagation.MinIntrospectionRate && s.IntrospectionRate <= propagation.MaxIntrospectionRate) {
		return fmt.Errorf("introspection_rate must be between %.1f and %.1f, got %v",
			propagation.MinIntrospectionRate, propagation.MaxIntrospectionRate, s.IntrospectionRate)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", s.TickInterval)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}

	if c.Recorder.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every must be non-negative, got %d", c.Recorder.SnapshotEvery)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Keys lists every key accepted by Get and Set, in display order.
var Keys = []string{
	"simulation.recursion_depth",
	"simulation.introspection_rate",
	"simulation.tick_interval",
	"simulation.seed",
	"simulation.topology",
	"server.addr",
	"server.auto_start",
	"recorder.enabled",
	"recorder.path",
	"recorder.snapshot_every",
	"logging.level",
}

// Get retrieves a configuration value by dot-notation key.
func (c *NexusConfig) Get(key string) (any, bool) {
	switch key {
	case "simulation.recursion_depth":
		return c.Simulation.RecursionDepth, true
	case "simulation.introspection_rate":
		return c.Simulation.IntrospectionRate, true
	case "simulation.tick_interval":
		return c.Simulation.TickInterval.String(), true
	case "simulation.seed":
		return c.Simulation.Seed, true
	case "simulation.topology":
		return c.Simulation.Topology, true
	case "server.addr":
		return c.Server.Addr, true
	case "server.auto_start":
		return c.Server.AutoStart, true
	case "recorder.enabled":
		return c.Recorder.Enabled, true
	case "recorder.path":
		return c.Recorder.Path, true
	case "recorder.snapshot_every":
		return c.Recorder.SnapshotEvery, true
	case "logging.level":
		return c.Logging.Level, true
	default:
		return nil, false
	}
}

// Set sets a configuration value by dot-notation key. Numeric control
// parameters must lie inside their domain.
func (c *NexusConfig) Set(key, value string) error {
	switch key {
	case "simulation.recursion_depth":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid recursion depth: %s", value)
		}
		if n < propagation.MinRecursionDepth || n > propagation.MaxRecursionDepth {
			return fmt.Errorf("recursion depth must be between %d and %d, got %d",
				propagation.MinRecursionDepth, propagation.MaxRecursionDepth, n)
		}
		c.Simulation.RecursionDepth = n
	case "simulation.introspection_rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid introspection rate: %s", value)
		}
		if !(f >= propagation.MinIntrospectionRate && f <= propagation.MaxIntrospectionRate) {
			return fmt.Errorf("introspection rate must be between %.1f and %.1f, got %v",
				propagation.MinIntrospectionRate, propagation.MaxIntrospectionRate, f)
		}
		c.Simulation.IntrospectionRate = f
	case "simulation.tick_interval":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration: %s", value)
		}
		c.Simulation.TickInterval = d
	case "simulation.seed":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s", value)
		}
		c.Simulation.Seed = n
	case "simulation.topology":
		c.Simulation.Topology = value
	case "server.addr":
		if value == "" {
			return fmt.Errorf("server addr must not be empty")
		}
		c.Server.Addr = value
	case "server.auto_start":
		c.Server.AutoStart = parseBool(value)
	case "recorder.enabled":
		c.Recorder.Enabled = parseBool(value)
	case "recorder.path":
		c.Recorder.Path = value
	case "recorder.snapshot_every":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid snapshot interval: %s", value)
		}
		c.Recorder.SnapshotEvery = n
	case "logging.level":
		validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
		if !validLevels[value] {
			return fmt.Errorf("invalid log level: %s (valid: info, debug, trace)", value)
		}
		c.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Malformed numeric values are ignored.
func applyEnvOverrides(config *NexusConfig) {
	if v := os.Getenv("NEXUS_RECURSION_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.RecursionDepth = n
		}
	}
	if v := os.Getenv("NEXUS_INTROSPECTION_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.IntrospectionRate = f
		}
	}
	if v := os.Getenv("NEXUS_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Simulation.TickInterval = d
		}
	}
	if v := os.Getenv("NEXUS_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}
	if v := os.Getenv("NEXUS_TOPOLOGY"); v != "" {
		config.Simulation.Topology = v
	}

	if v := os.Getenv("NEXUS_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("NEXUS_RECORD"); v != "" {
		config.Recorder.Enabled = parseBool(v)
	}
	if v := os.Getenv("NEXUS_SNAPSHOT_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Recorder.SnapshotEvery = n
		}
	}

	if v := os.Getenv("NEXUS_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
