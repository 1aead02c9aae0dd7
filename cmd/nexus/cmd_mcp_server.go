package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nexus/internal/mcp"
	"github.com/nvandessel/nexus/internal/scheduler"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run nexus as an MCP server over stdio",
		Long: `Expose a live simulation to an agent through the Model Context Protocol.

Tools: nexus_status, nexus_start, nexus_pause, nexus_reset, nexus_tick,
nexus_set_params, nexus_snapshot, nexus_graph.
Resources: nexus://status, nexus://nodes/{id}.

Calls are appended to <root>/.nexus/audit.jsonl. Logs go to stderr so
stdout stays reserved for the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, rs, err := s.openRecording(cmd)
			if err != nil {
				return err
			}
			if rec != nil {
				defer rec.Close()
				defer rs.Close()
			}

			opts := []scheduler.Option{
				scheduler.WithInterval(s.cfg.Simulation.TickInterval),
				scheduler.WithLogger(s.logger),
			}
			if rs != nil {
				opts = append(opts, scheduler.WithObserver(rs))
			}
			d := scheduler.NewDriver(s.sim, opts...)

			srv, err := mcp.NewServer(&mcp.Config{
				Name:     "nexus",
				Version:  version,
				Driver:   d,
				AuditDir: s.nexusDir(),
				Logger:   s.logger,
			})
			if err != nil {
				return fmt.Errorf("create MCP server: %w", err)
			}
			defer srv.Close()

			// srv.Run handles SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			background, _ := cmd.Flags().GetBool("background")
			if background {
				go func() {
					if err := d.Run(ctx); err != nil {
						s.logger.Error("driver stopped", "error", err)
						cancel()
					}
				}()
			}

			return srv.Run(ctx)
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().Bool("background", true, "Tick in the background at the tick interval while running")
	cmd.Flags().Duration("interval", 0, "Tick interval (default from config)")
	cmd.Flags().Bool("record", false, "Record the run to the SQLite recorder")
	cmd.Flags().Int("snapshot-every", 0, "Record node snapshots every N ticks (default from config)")

	return cmd
}
