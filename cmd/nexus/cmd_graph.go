package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nexus/internal/scheduler"
	"github.com/nvandessel/nexus/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the network",
		Long: `Output the network in DOT (Graphviz) or JSON format. With --ticks the
simulation runs first so that node colors reflect activations.

Examples:
  nexus graph | dot -Tsvg > nexus.svg
  nexus graph --ticks 30 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatFlag, _ := cmd.Flags().GetString("format")
			ticks, _ := cmd.Flags().GetInt("ticks")

			format, err := visualization.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			if ticks < 0 {
				return fmt.Errorf("--ticks must not be negative, got %d", ticks)
			}

			s, err := newSession(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			d := scheduler.NewDriver(s.sim, scheduler.WithLogger(s.logger))
			if ticks > 0 {
				d.Start()
				if err := runTicks(cmd.Context(), d, ticks); err != nil {
					return err
				}
				d.Pause()
			}
			nodes := d.Frame().Nodes

			switch format {
			case visualization.FormatJSON:
				return printJSON(cmd, visualization.RenderJSON(nodes))
			default:
				_, err := io.WriteString(cmd.OutOrStdout(), visualization.RenderDOT(nodes))
				return err
			}
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().Int("ticks", 0, "Ticks to run before rendering")

	return cmd
}
