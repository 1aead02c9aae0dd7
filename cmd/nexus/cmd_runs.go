package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nexus/internal/config"
	"github.com/nvandessel/nexus/internal/recorder"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse recorded runs",
		Long: `List, inspect, delete and archive runs recorded with --record.

Run ids can be abbreviated to any unambiguous prefix.

Examples:
  nexus runs list
  nexus runs show 3f2a --metrics
  nexus runs show 3f2a --nodes 50
  nexus runs delete 3f2a
  nexus runs export 3f2a --keep 10
  nexus runs import archive.nxa`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
		newRunsExportCmd(),
		newRunsImportCmd(),
		newRunsArchivesCmd(),
	)
	return cmd
}

// openRecorder opens the recorder configured for the --root project.
func openRecorder(cmd *cobra.Command) (*recorder.Recorder, error) {
	root, _ := cmd.Flags().GetString("root")
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	rec, err := recorder.Open(recorderPath(cfg, root))
	if err != nil {
		return nil, fmt.Errorf("open recorder: %w", err)
	}
	return rec, nil
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			rec, err := openRecorder(cmd)
			if err != nil {
				return err
			}
			defer rec.Close()

			runs, err := rec.ListRuns(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s  %-19s  %5s  %8s  %s\n", "RUN", "STARTED", "TICKS", "LEVEL", "PARAMS")
			for _, r := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s  %-19s  %5d  %7.2f%%  depth=%d rate=%.2f\n",
					shortID(r.ID), r.StartedAt.Local().Format(time.DateTime), r.Ticks, r.FinalLevel,
					r.Params.RecursionDepth, r.Params.IntrospectionRate)
			}
			return nil
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			withMetrics, _ := cmd.Flags().GetBool("metrics")
			nodesAt, _ := cmd.Flags().GetInt("nodes")
			epoch, _ := cmd.Flags().GetInt("epoch")

			rec, err := openRecorder(cmd)
			if err != nil {
				return err
			}
			defer rec.Close()

			ctx := cmd.Context()
			run, err := rec.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			snapshots, err := rec.Snapshots(ctx, run.ID)
			if err != nil {
				return err
			}

			var metrics []recorder.Metric
			if withMetrics {
				if metrics, err = rec.Metrics(ctx, run.ID); err != nil {
					return err
				}
			}
			var nodes []recorder.NodeRecord
			var key recorder.SnapshotKey
			if cmd.Flags().Changed("nodes") {
				var ok bool
				key, ok = pickSnapshot(snapshots, uint64(nodesAt), epoch, cmd.Flags().Changed("epoch"))
				if !ok {
					return fmt.Errorf("run %s has no node snapshot at iteration %d (have %v)", shortID(run.ID), nodesAt, snapshots)
				}
				if nodes, err = rec.Nodes(ctx, run.ID, key); err != nil {
					return err
				}
			}

			if jsonOut {
				out := map[string]interface{}{
					"run":       run,
					"snapshots": snapshots,
				}
				if withMetrics {
					out["metrics"] = metrics
				}
				if nodes != nil {
					out["nodes"] = nodes
				}
				return printJSON(cmd, out)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "  started:     %s\n", run.StartedAt.Local().Format(time.DateTime))
			if run.EndedAt != nil {
				fmt.Fprintf(out, "  ended:       %s (%s)\n", run.EndedAt.Local().Format(time.DateTime),
					run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))
			} else {
				fmt.Fprintln(out, "  ended:       (still running or interrupted)")
			}
			fmt.Fprintf(out, "  seed:        %d\n", run.Seed)
			fmt.Fprintf(out, "  params:      depth=%d rate=%.2f\n", run.Params.RecursionDepth, run.Params.IntrospectionRate)
			fmt.Fprintf(out, "  nodes:       %d\n", run.NodeCount)
			fmt.Fprintf(out, "  ticks:       %d\n", run.Ticks)
			fmt.Fprintf(out, "  final level: %.2f%%\n", run.FinalLevel)
			fmt.Fprintf(out, "  snapshots:   %v\n", snapshots)

			if withMetrics {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "%5s  %6s  %8s  %10s  %6s  %5s  %13s\n", "EPOCH", "ITER", "LEVEL", "ACTIVATION", "ACTIVE", "DEPTH", "INTROSPECTION")
				for _, m := range metrics {
					fmt.Fprintf(out, "%5d  %6d  %7.2f%%  %10.4f  %6d  %5d  %13.2f\n",
						m.Epoch, m.Iteration, m.Consciousness, m.Activation, m.ActiveNodes, m.RecursionDepth, m.Introspection)
				}
			}
			if nodes != nil {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Nodes at iteration %d, epoch %d:\n", key.Iteration, key.Epoch)
				for _, n := range nodes {
					fmt.Fprintf(out, "  %-6s %-10s %.4f -> %v\n", n.NodeID, n.NodeType, n.Activation, n.Connections)
				}
			}
			return nil
		},
	}

	cmd.Flags().Bool("metrics", false, "Include every per-tick metrics row")
	cmd.Flags().Int("nodes", 0, "Show the node snapshot taken at this iteration")
	cmd.Flags().Int("epoch", 0, "Reset epoch of the --nodes snapshot (default: the latest with that iteration)")

	return cmd
}

// pickSnapshot finds the snapshot at iteration. Without an explicit epoch
// the latest epoch holding that iteration wins.
func pickSnapshot(keys []recorder.SnapshotKey, iteration uint64, epoch int, epochSet bool) (recorder.SnapshotKey, bool) {
	var found recorder.SnapshotKey
	ok := false
	for _, k := range keys {
		if k.Iteration != iteration || (epochSet && k.Epoch != epoch) {
			continue
		}
		if !ok || k.Epoch > found.Epoch {
			found, ok = k, true
		}
	}
	return found, ok
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a recorded run and its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			rec, err := openRecorder(cmd)
			if err != nil {
				return err
			}
			defer rec.Close()

			run, err := rec.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := rec.DeleteRun(cmd.Context(), run.ID); err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, map[string]string{"status": "deleted", "run_id": run.ID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
