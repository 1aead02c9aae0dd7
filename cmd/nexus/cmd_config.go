package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nexus/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage nexus configuration",
		Long: `View and modify nexus configuration settings.

Configuration is stored in ~/.nexus/config.yaml. NEXUS_* environment
variables override the file.

Examples:
  nexus config list                                # Show all settings
  nexus config get simulation.recursion_depth      # Get a specific setting
  nexus config set simulation.tick_interval 50ms   # Set a setting
  nexus config set recorder.enabled true`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				return printJSON(cmd, cfg)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Configuration (~/.nexus/config.yaml):")
			fmt.Fprintln(cmd.OutOrStdout())
			for _, key := range config.Keys {
				value, _ := cfg.Get(key)
				fmt.Fprintf(cmd.OutOrStdout(), "  %-30s %v\n", key+":", valueOrDefault(value, "(not set)"))
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := cfg.Get(key)
			if !found {
				if jsonOut {
					return printJSON(cmd, map[string]interface{}{
						"error": "key not found",
						"key":   key,
					})
				}
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if err := cfg.Set(key, value); err != nil {
				if jsonOut {
					if perr := printJSON(cmd, map[string]interface{}{
						"error": err.Error(),
						"key":   key,
					}); perr != nil {
						return perr
					}
				}
				return err
			}

			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

func valueOrDefault(v interface{}, def string) interface{} {
	if s, ok := v.(string); ok && s == "" {
		return def
	}
	return v
}
