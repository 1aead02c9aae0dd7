package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nexus/internal/scheduler"
	"github.com/nvandessel/nexus/internal/simulator"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation headless for a number of ticks",
		Long: `Start the simulation, advance it for --ticks ticks and print the final
status. By default ticks run back to back; --realtime paces them at the
configured tick interval.

Examples:
  nexus run --ticks 200
  nexus run --ticks 50 --depth 5 --rate 1.0 --seed 42 --every 10
  nexus run --ticks 500 --record --snapshot-every 25
  nexus run --ticks 100 --realtime --interval 50ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			ticks, _ := cmd.Flags().GetInt("ticks")
			every, _ := cmd.Flags().GetInt("every")
			realtime, _ := cmd.Flags().GetBool("realtime")

			if ticks < 1 {
				return fmt.Errorf("--ticks must be at least 1, got %d", ticks)
			}

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
			if every > 0 && !jsonOut {
				opts = append(opts, scheduler.WithObserver(progressPrinter(cmd, every)))
			}
			d := scheduler.NewDriver(s.sim, opts...)

			d.Start()
			if realtime {
				err = runRealtime(cmd.Context(), d, ticks)
			} else {
				err = runTicks(cmd.Context(), d, ticks)
			}
			if err != nil {
				return err
			}
			st := d.Pause()

			runID := ""
			if rs != nil {
				runID = rs.RunID()
				if n := rs.Failures(); n > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d recorder writes failed\n", n)
				}
			}

			if jsonOut {
				out := map[string]interface{}{
					"status": st,
					"seed":   s.seed,
				}
				if runID != "" {
					out["run_id"] = runID
				}
				return printJSON(cmd, out)
			}
			printStatus(cmd, st)
			fmt.Fprintf(cmd.OutOrStdout(), "  seed:            %d\n", s.seed)
			if runID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  run:             %s\n", runID)
			}
			return nil
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().Int("ticks", 100, "Number of ticks to run")
	cmd.Flags().Int("every", 0, "Print a progress line every N ticks (0 disables)")
	cmd.Flags().Bool("realtime", false, "Pace ticks at the tick interval")
	cmd.Flags().Duration("interval", 0, "Tick interval for --realtime (default from config)")
	cmd.Flags().Bool("record", false, "Record the run to the SQLite recorder")
	cmd.Flags().Int("snapshot-every", 0, "Record node snapshots every N ticks (default from config)")

	return cmd
}

// runTicks advances d n times back to back, stopping early if ctx is done.
func runTicks(ctx context.Context, d *scheduler.Driver, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := d.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// runRealtime ticks d on its interval until n ticks have been committed or
// ctx is done.
func runRealtime(ctx context.Context, d *scheduler.Driver, n int) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()
	return d.RunTicks(ctx, n)
}
