package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/dtsm/internal/backup"
	"github.com/nvandessel/dtsm/internal/config"
	"github.com/nvandessel/dtsm/internal/pathutil"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export all saved runs to a backup file",
		Long: `Backup every saved run (spec, lattice and snapshots) to a compressed file.

Default location: ~/.dtsm/backups/dtsm-backup-YYYYMMDD-HHMMSS.json.gz
Keeps backups according to retention policy (default: last 10).

Examples:
  dtsm backup                              # Backup the local store (V2 compressed)
  dtsm backup --global                     # Backup the global store
  dtsm backup --output ~/.dtsm/backups/before-upgrade.json.gz
  dtsm backup --no-compress                # Create V1 uncompressed backup
  dtsm backup list                         # List all backups
  dtsm backup verify <file>                # Verify backup integrity`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")
			noCompress, _ := cmd.Flags().GetBool("no-compress")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			compress := cfg.Backup.Compression && !noCompress

			if outputPath == "" {
				dir, err := backup.DefaultBackupDir()
				if err != nil {
					return fmt.Errorf("failed to get backup directory: %w", err)
				}
				if compress {
					outputPath = backup.GenerateBackupPath(dir)
				} else {
					outputPath = backup.GenerateBackupPathV1(dir)
				}
			} else if err := checkBackupPath(cmd, cfg, outputPath); err != nil {
				return fmt.Errorf("backup path rejected: %w", err)
			}

			policy, err := backup.NewPolicy(cfg.Backup.Retention.MaxCount, cfg.Backup.Retention.MaxAge, cfg.Backup.Retention.MaxTotalSize)
			if err != nil {
				return fmt.Errorf("invalid retention policy: %w", err)
			}

			rs, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer rs.Close()

			result, err := backup.Backup(cmd.Context(), rs, outputPath, compress)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			if _, err := backup.ApplyRetention(filepath.Dir(outputPath), policy); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
			}

			if jsonOut {
				var sizeBytes int64
				if info, err := os.Stat(outputPath); err == nil {
					sizeBytes = info.Size()
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"path":           outputPath,
					"run_count":      len(result.Runs),
					"snapshot_count": result.SnapshotCount(),
					"version":        result.Version,
					"compressed":     compress,
					"size_bytes":     sizeBytes,
				})
			}

			versionLabel := "v2/gzip"
			if !compress {
				versionLabel = "v1/json"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %d runs, %d snapshots (%s)\n", len(result.Runs), result.SnapshotCount(), versionLabel)
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().String("output", "", "Output file path (default: auto-generated in ~/.dtsm/backups/)")
	cmd.Flags().Bool("no-compress", false, "Create V1 uncompressed backup instead of V2 compressed")

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
	)

	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore saved runs from a backup file",
		Long: `Restore runs from a backup file (V1 or V2 format).
Format is auto-detected.

Modes:
  merge   - Skip runs that already exist (default)
  replace - Delete all runs first, then restore

Examples:
  dtsm restore ~/.dtsm/backups/dtsm-backup-20260206-120000.json.gz
  dtsm restore ~/.dtsm/backups/old.json --mode replace --global`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath := args[0]
			jsonOut, _ := cmd.Flags().GetBool("json")
			mode, _ := cmd.Flags().GetString("mode")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := checkBackupPath(cmd, cfg, inputPath); err != nil {
				return fmt.Errorf("restore path rejected: %w", err)
			}

			rs, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer rs.Close()

			result, err := backup.Restore(cmd.Context(), rs, inputPath, backup.RestoreMode(mode))
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Restore complete (mode: %s)\n", mode)
			fmt.Fprintf(cmd.OutOrStdout(), "  Runs: %d restored, %d skipped, %d deleted\n",
				result.RunsRestored, result.RunsSkipped, result.RunsDeleted)
			return nil
		},
	}

	cmd.Flags().String("mode", string(backup.RestoreMerge), "Restore mode: merge or replace")

	return cmd
}

// checkBackupPath confines path to the backup directories of the global
// store, the project store and the selected store.
func checkBackupPath(cmd *cobra.Command, cfg *config.DTSMConfig, path string) error {
	root, _ := cmd.Flags().GetString("root")
	storeDir, err := storeDirFor(cmd, cfg, commandScope(cmd))
	if err != nil {
		return err
	}
	allowed, err := pathutil.AllowedBackupDirs(root, filepath.Join(storeDir, pathutil.BackupDirName))
	if err != nil {
		return fmt.Errorf("failed to determine allowed backup dirs: %w", err)
	}
	return pathutil.ValidatePath(path, allowed)
}
