package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/dtsm/internal/backup"
)

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all backups with metadata",
		Long: `List all backup files in the default backup directory with version,
format, size, and run/snapshot counts.

Examples:
  dtsm backup list
  dtsm backup list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir, err := backup.DefaultBackupDir()
			if err != nil {
				return fmt.Errorf("failed to get backup directory: %w", err)
			}

			backups, err := backup.ListBackups(dir)
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}

			type entry struct {
				Path          string `json:"path"`
				Version       int    `json:"version"`
				Size          int64  `json:"size_bytes"`
				CreatedAt     string `json:"created_at"`
				RunCount      int    `json:"run_count,omitempty"`
				SnapshotCount int    `json:"snapshot_count,omitempty"`
				Checksum      string `json:"checksum,omitempty"`
			}
			entries := make([]entry, 0, len(backups))
			for _, b := range backups {
				e := entry{
					Path:      b.Path,
					Version:   b.Version,
					Size:      b.Size,
					CreatedAt: b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				}
				if b.Version == backup.FormatV2 {
					if header, err := backup.ReadV2Header(b.Path); err == nil {
						e.RunCount = header.RunCount
						e.SnapshotCount = header.SnapshotCount
						e.Checksum = header.Checksum
					}
				}
				entries = append(entries, e)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"backups":     entries,
					"total_count": len(entries),
					"directory":   dir,
				})
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No backups found in %s\n", dir)
				return nil
			}

			fmt.Fprintf(out, "Backups in %s:\n", dir)
			var totalSize int64
			for i, e := range entries {
				totalSize += e.Size
				versionStr, formatStr := "v1", "json"
				if e.Version == backup.FormatV2 {
					versionStr, formatStr = "v2", "gzip"
				}
				fmt.Fprintf(out, "  %s  %s  %s  %s  %d runs  %d snapshots  %s\n",
					backups[i].CreatedAt.Format("2006-01-02 15:04"),
					versionStr,
					formatStr,
					formatBytes(e.Size),
					e.RunCount,
					e.SnapshotCount,
					filepath.Base(e.Path),
				)
			}
			fmt.Fprintf(out, "Total: %d backups, %s\n", len(entries), formatBytes(totalSize))
			return nil
		},
	}
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1fGB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1fMB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1fKB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
