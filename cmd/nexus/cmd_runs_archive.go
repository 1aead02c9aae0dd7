package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nexus/internal/backup"
)

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a recorded run to a compressed archive",
		Long: `Write a run with all its metrics and node snapshots to a gzip archive
with a SHA-256 checksum header. Archives default to <root>/.nexus/archives.

Retention flags prune older archives in the same directory after the
export; an archive is kept if any flag keeps it.

Examples:
  nexus runs export 3f2a
  nexus runs export 3f2a -o run.nxa
  nexus runs export 3f2a --keep 10 --max-age 30d --max-size 500MB
  nexus runs export 3f2a --latest-per-run --keep 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			output, _ := cmd.Flags().GetString("output")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")
			maxSize, _ := cmd.Flags().GetString("max-size")
			latestPerRun, _ := cmd.Flags().GetBool("latest-per-run")

			policy, err := retentionPolicy(keep, maxAge, maxSize, latestPerRun)
			if err != nil {
				return err
			}

			rec, err := openRecorder(cmd)
			if err != nil {
				return err
			}
			defer rec.Close()

			run, err := rec.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			dir := backup.DefaultDir(root)
			path := output
			if path == "" {
				path = backup.GeneratePath(dir, run.ID)
			} else {
				dir = filepath.Dir(path)
			}

			a, err := backup.Export(cmd.Context(), rec, run.ID, path)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			var deleted []string
			if policy != nil {
				if deleted, err = backup.ApplyRetention(dir, policy); err != nil {
					return fmt.Errorf("retention: %w", err)
				}
			}

			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"path":    path,
					"run_id":  a.Run.ID,
					"metrics": len(a.Metrics),
					"nodes":   len(a.Nodes),
					"pruned":  deleted,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported run %s (%d ticks, %d node rows) to %s\n",
				shortID(a.Run.ID), len(a.Metrics), len(a.Nodes), path)
			for _, p := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "  pruned %s\n", filepath.Base(p))
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Archive path (default: <root>/.nexus/archives/nexus-run-<time>-<id>.nxa)")
	cmd.Flags().Int("keep", 0, "Keep at most N archives in the directory (0 disables)")
	cmd.Flags().String("max-age", "", "Keep archives newer than this (e.g. 30d, 2w, 720h)")
	cmd.Flags().String("max-size", "", "Keep archives while their total size stays under this (e.g. 500MB)")
	cmd.Flags().Bool("latest-per-run", false, "Drop older archives of a run once it is exported again")

	return cmd
}

// retentionPolicy combines the retention flags. Returns nil when none is set.
// With latestPerRun the count, age and size limits apply to the newest
// archive of each run.
func retentionPolicy(keep int, maxAge, maxSize string, latestPerRun bool) (backup.RetentionPolicy, error) {
	var policies []backup.RetentionPolicy
	if keep > 0 {
		policies = append(policies, &backup.CountPolicy{MaxCount: keep})
	}
	if maxAge != "" {
		d, err := backup.ParseDuration(maxAge)
		if err != nil {
			return nil, fmt.Errorf("--max-age: %w", err)
		}
		policies = append(policies, &backup.AgePolicy{MaxAge: d})
	}
	if maxSize != "" {
		n, err := backup.ParseSize(maxSize)
		if err != nil {
			return nil, fmt.Errorf("--max-size: %w", err)
		}
		policies = append(policies, &backup.SizePolicy{MaxTotalBytes: n})
	}
	var limit backup.RetentionPolicy
	switch len(policies) {
	case 0:
	case 1:
		limit = policies[0]
	default:
		limit = &backup.CompositePolicy{Policies: policies}
	}
	if latestPerRun {
		return &backup.LatestPerRunPolicy{Then: limit}, nil
	}
	return limit, nil
}

func newRunsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive>",
		Short: "Import a run archive into the recorder",
		Long:  `Verify an archive's checksum and store its run. A run that already exists is skipped.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			rec, err := openRecorder(cmd)
			if err != nil {
				return err
			}
			defer rec.Close()

			res, err := backup.Import(cmd.Context(), rec, args[0])
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			if jsonOut {
				return printJSON(cmd, res)
			}
			if res.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s already recorded, skipped.\n", shortID(res.RunID))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported run %s (%d ticks, %d node rows)\n",
				shortID(res.RunID), res.Metrics, res.Nodes)
			return nil
		},
	}
}

func newRunsArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List run archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			dir, _ := cmd.Flags().GetString("dir")
			verify, _ := cmd.Flags().GetBool("verify")
			if dir == "" {
				dir = backup.DefaultDir(root)
			}

			files, err := backup.List(dir)
			if err != nil {
				return err
			}

			type entry struct {
				backup.FileInfo
				Valid *bool  `json:"valid,omitempty"`
				Error string `json:"error,omitempty"`
			}
			entries := make([]entry, len(files))
			for i, f := range files {
				entries[i] = entry{FileInfo: f}
				if verify {
					err := backup.VerifyChecksum(f.Path)
					ok := err == nil
					entries[i].Valid = &ok
					if err != nil {
						entries[i].Error = err.Error()
					}
				}
			}

			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"dir":      dir,
					"archives": entries,
					"count":    len(entries),
				})
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No archives in %s\n", dir)
				return nil
			}
			for _, e := range entries {
				status := ""
				if e.Valid != nil {
					status = "  ✓"
					if !*e.Valid {
						status = "  ✗ " + e.Error
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s  %5d ticks  %8d B  %s%s\n",
					e.CreatedAt.Local().Format(time.DateTime), shortID(e.RunID), e.Ticks, e.Size,
					filepath.Base(e.Path), status)
			}
			return nil
		},
	}

	cmd.Flags().String("dir", "", "Archive directory (default: <root>/.nexus/archives)")
	cmd.Flags().Bool("verify", false, "Verify each archive's checksum")

	return cmd
}
