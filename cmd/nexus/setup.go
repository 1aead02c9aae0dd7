package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nexus/internal/config"
	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/logging"
	"github.com/nvandessel/nexus/internal/propagation"
	"github.com/nvandessel/nexus/internal/recorder"
	"github.com/nvandessel/nexus/internal/simulator"
)

// addSimulationFlags registers the flags shared by every command that
// builds a simulator. Unset flags fall back to the loaded config.
func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().Int("depth", 0, "Recursion depth (1-5, clamped)")
	cmd.Flags().Float64("rate", 0, "Introspection rate (0.1-1.0, clamped)")
	cmd.Flags().Int64("seed", 0, "Noise seed (0 picks a time-based seed)")
	cmd.Flags().String("topology", "", "YAML topology file (default: built-in ten-node network)")
}

// session bundles everything a command needs to drive one simulator.
type session struct {
	cfg     *config.NexusConfig
	root    string
	specs   []graph.NodeSpec
	sim     *simulator.Simulator
	seed    int64
	logger  *slog.Logger
	tickLog *logging.TickLogger
}

// nexusDir returns <root>/.nexus.
func (s *session) nexusDir() string {
	return filepath.Join(s.root, config.DirName)
}

// Close releases the tick log.
func (s *session) Close() {
	s.tickLog.Close()
}

// newSession loads config, applies flag overrides and builds the simulator.
// Operational logs go to logOut.
func newSession(cmd *cobra.Command, logOut io.Writer) (*session, error) {
	root, _ := cmd.Flags().GetString("root")

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applySimulationFlags(cmd, cfg)

	logger := logging.NewLogger(cfg.Logging.Level, logOut)
	if err := cfg.Validate(); err != nil {
		logger.Warn("config out of range, clamping", "error", err)
	}

	specs := graph.DefaultTopology()
	if cfg.Simulation.Topology != "" {
		specs, err = graph.LoadTopology(cfg.Simulation.Topology)
		if err != nil {
			return nil, fmt.Errorf("load topology: %w", err)
		}
	}
	g, err := graph.New(specs)
	if err != nil {
		return nil, err
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &session{
		cfg:    cfg,
		root:   root,
		specs:  specs,
		seed:   seed,
		logger: logger,
	}
	s.tickLog = logging.NewTickLogger(s.nexusDir(), cfg.Logging.Level)
	s.sim = simulator.New(g, propagation.NewSeededNoise(seed),
		simulator.WithParams(cfg.Simulation.Params()),
		simulator.WithLogger(logger),
		simulator.WithTickLogger(s.tickLog),
	)

	logger.Debug("simulator ready",
		"nodes", g.Len(),
		"edges", g.EdgeCount(),
		"seed", seed,
		"params", s.sim.Params(),
	)
	return s, nil
}

func applySimulationFlags(cmd *cobra.Command, cfg *config.NexusConfig) {
	flags := cmd.Flags()
	if flags.Changed("depth") {
		cfg.Simulation.RecursionDepth, _ = flags.GetInt("depth")
	}
	if flags.Changed("rate") {
		cfg.Simulation.IntrospectionRate, _ = flags.GetFloat64("rate")
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("topology") {
		cfg.Simulation.Topology, _ = flags.GetString("topology")
	}
	if flags.Lookup("interval") != nil && flags.Changed("interval") {
		cfg.Simulation.TickInterval, _ = flags.GetDuration("interval")
	}
	if flags.Lookup("record") != nil && flags.Changed("record") {
		cfg.Recorder.Enabled, _ = flags.GetBool("record")
	}
	if flags.Lookup("snapshot-every") != nil && flags.Changed("snapshot-every") {
		cfg.Recorder.SnapshotEvery, _ = flags.GetInt("snapshot-every")
	}
}

// recorderPath returns the configured database path or <root>/.nexus/runs.db.
func recorderPath(cfg *config.NexusConfig, root string) string {
	if cfg.Recorder.Path != "" {
		return cfg.Recorder.Path
	}
	return recorder.DefaultPath(root)
}

// openRecording opens the recorder and starts a session for s when
// recording is enabled. Both return values are nil when it is not.
func (s *session) openRecording(cmd *cobra.Command) (*recorder.Recorder, *recorder.Session, error) {
	if !s.cfg.Recorder.Enabled {
		return nil, nil, nil
	}
	rec, err := recorder.Open(recorderPath(s.cfg, s.root))
	if err != nil {
		return nil, nil, fmt.Errorf("open recorder: %w", err)
	}
	topo, err := graph.MarshalTopology(s.specs)
	if err != nil {
		rec.Close()
		return nil, nil, err
	}
	rs, err := rec.NewSession(cmd.Context(), recorder.Run{
		Seed:      s.seed,
		Params:    s.sim.Params(),
		NodeCount: len(s.specs),
		Topology:  string(topo),
	},
		recorder.WithSnapshotEvery(s.cfg.Recorder.SnapshotEvery),
		recorder.WithSessionLogger(s.logger),
	)
	if err != nil {
		rec.Close()
		return nil, nil, fmt.Errorf("start run: %w", err)
	}
	s.logger.Info("recording run", "run", rs.RunID(), "db", rec.Path())
	return rec, rs, nil
}
