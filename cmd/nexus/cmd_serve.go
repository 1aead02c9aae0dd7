package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nvandessel/nexus/internal/scheduler"
	"github.com/nvandessel/nexus/internal/server"
	"github.com/nvandessel/nexus/internal/telemetry"
	"github.com/nvandessel/nexus/internal/visualization"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation over HTTP and websockets",
		Long: `Start an HTTP control API for a live simulation. The driver ticks in
the background at the configured interval while the simulation is
running.

Endpoints:
  GET  /api/status             current status
  GET  /api/snapshot           status and every node
  GET  /api/nodes/{id}         one node's activation
  GET  /api/graph?format=dot   graph as DOT or JSON
  POST /api/start|pause|reset  lifecycle commands
  POST /api/tick               advance once while running
  POST /api/params             {"recursion_depth":4,"introspection_rate":0.9}
  GET  /ws                     frame stream and commands
  GET  /metrics                Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer s.Close()

			if cmd.Flags().Changed("addr") {
				s.cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
			}
			if cmd.Flags().Changed("auto-start") {
				s.cfg.Server.AutoStart, _ = cmd.Flags().GetBool("auto-start")
			}
			open, _ := cmd.Flags().GetBool("open")
			noMetrics, _ := cmd.Flags().GetBool("no-metrics")

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

			var srvOpts []server.Option
			srvOpts = append(srvOpts, server.WithLogger(s.logger))
			if !noMetrics {
				reg := prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				opts = append(opts, scheduler.WithObserver(telemetry.New(reg)))
				srvOpts = append(srvOpts, server.WithGatherer(reg))
			}

			d := scheduler.NewDriver(s.sim, opts...)
			srv := server.New(d, srvOpts...)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			driverErr := make(chan error, 1)
			go func() { driverErr <- d.Run(ctx) }()

			srvErr := make(chan error, 1)
			go func() { srvErr <- srv.ListenAndServe(ctx, s.cfg.Server.Addr) }()

			// Wait for server to start
			deadline := time.Now().Add(3 * time.Second)
			for time.Now().Before(deadline) && srv.Addr() == "" {
				select {
				case err := <-srvErr:
					return fmt.Errorf("server error: %w", err)
				case <-time.After(10 * time.Millisecond):
				}
			}
			addr := srv.Addr()
			if addr == "" {
				return errors.New("server failed to start")
			}

			if s.cfg.Server.AutoStart {
				d.Start()
			}

			url := "http://" + addr
			fmt.Fprintf(cmd.OutOrStdout(), "Nexus server running at %s\n", url)
			fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

			if open {
				if err := visualization.OpenBrowser(url + "/api/graph?format=json"); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
				}
			}

			select {
			case err := <-srvErr:
				cancel()
				<-driverErr
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case err := <-driverErr:
				cancel()
				<-srvErr
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().String("addr", "", "Listen address (default from config, localhost:7420)")
	cmd.Flags().Bool("auto-start", false, "Start the simulation immediately")
	cmd.Flags().Duration("interval", 0, "Tick interval (default from config)")
	cmd.Flags().Bool("record", false, "Record the run to the SQLite recorder")
	cmd.Flags().Int("snapshot-every", 0, "Record node snapshots every N ticks (default from config)")
	cmd.Flags().Bool("open", false, "Open the graph endpoint in a browser")
	cmd.Flags().Bool("no-metrics", false, "Disable the /metrics endpoint")

	return cmd
}
