// Package backup provides backup and restore functionality for the dtsm run store.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/dtsm/internal/store"
)

// BackupFormat is the JSON structure for a full backup file.
type BackupFormat struct {
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	Runs      []store.Run `json:"runs"`
}

// SnapshotCount returns the number of snapshots across all runs.
func (b *BackupFormat) SnapshotCount() int {
	n := 0
	for _, r := range b.Runs {
		n += len(r.Snapshots)
	}
	return n
}

// DefaultBackupDir returns the default backup directory (~/.dtsm/backups/).
func DefaultBackupDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, store.DirName, "backups"), nil
}

// Backup exports every run with its snapshots to outputPath, as V2 gzip when
// compress is set and V1 plain JSON otherwise.
func Backup(ctx context.Context, runStore store.RunStore, outputPath string, compress bool) (*BackupFormat, error) {
	summaries, err := runStore.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	version := FormatV1
	if compress {
		version = FormatV2
	}
	backup := &BackupFormat{
		Version:   version,
		CreatedAt: time.Now().UTC(),
		Runs:      make([]store.Run, 0, len(summaries)),
	}

	// Oldest first so a restore recreates the same listing order.
	for i := len(summaries) - 1; i >= 0; i-- {
		run, err := runStore.GetRun(ctx, summaries[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", summaries[i].ID, err)
		}
		backup.Runs = append(backup.Runs, *run)
	}

	if compress {
		err = WriteV2(outputPath, backup)
	} else {
		err = WriteV1(outputPath, backup)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	return backup, nil
}

// RestoreMode controls how restore handles existing data.
type RestoreMode string

const (
	// RestoreMerge skips runs that already exist (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace clears the store before restoring.
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	RunsRestored int `json:"runs_restored"`
	RunsSkipped  int `json:"runs_skipped"`
	RunsDeleted  int `json:"runs_deleted"`
}

// Restore imports runs from a V1 or V2 backup file into the store.
func Restore(ctx context.Context, runStore store.RunStore, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	if mode == "" {
		mode = RestoreMerge
	}
	if mode != RestoreMerge && mode != RestoreReplace {
		return nil, fmt.Errorf("invalid restore mode: %s (valid: merge, replace)", mode)
	}

	backup, err := Read(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	for i := range backup.Runs {
		if err := backup.Runs[i].CheckSnapshots(); err != nil {
			return nil, fmt.Errorf("backup holds an invalid run: %w", err)
		}
	}

	result := &RestoreResult{}

	if mode == RestoreReplace {
		existing, err := runStore.ListRuns(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		for _, s := range existing {
			if err := runStore.DeleteRun(ctx, s.ID); err != nil {
				return nil, fmt.Errorf("failed to clear run %s: %w", s.ID, err)
			}
			result.RunsDeleted++
		}
	}

	for i := range backup.Runs {
		run := backup.Runs[i]
		if _, err := runStore.SaveRun(ctx, &run); err != nil {
			if errors.Is(err, store.ErrRunExists) {
				result.RunsSkipped++
				continue
			}
			return nil, fmt.Errorf("failed to restore run %s: %w", run.ID, err)
		}
		result.RunsRestored++
	}

	return result, nil
}

// GenerateBackupPath creates a timestamped V2 backup filename in the given directory.
func GenerateBackupPath(dir string) string {
	ts := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("dtsm-backup-%s.json.gz", ts))
}

// GenerateBackupPathV1 creates a timestamped V1 backup filename in the given directory.
func GenerateBackupPathV1(dir string) string {
	ts := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("dtsm-backup-%s.json", ts))
}
