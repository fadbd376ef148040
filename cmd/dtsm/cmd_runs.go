package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/dtsm/internal/constants"
	"github.com/nvandessel/dtsm/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage saved runs",
		Long: `List, inspect and delete runs saved with 'dtsm run --save'.

Examples:
  dtsm runs list
  dtsm runs list --all
  dtsm runs show run-1a2b3c4d
  dtsm runs delete run-1a2b3c4d --global`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
	)

	return cmd
}

// scopedSummary is a run listing entry tagged with the store it came from.
type scopedSummary struct {
	store.RunSummary
	Scope constants.Scope `json:"scope"`
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			allFlag, _ := cmd.Flags().GetBool("all")
			globalFlag, _ := cmd.Flags().GetBool("global")
			if globalFlag && allFlag {
				return fmt.Errorf("cannot specify both --global and --all")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			scope := commandScope(cmd)
			if allFlag {
				scope = constants.ScopeBoth
			}
			scopes := []constants.Scope{scope}
			if scope == constants.ScopeBoth {
				scopes = []constants.Scope{constants.ScopeLocal, constants.ScopeGlobal}
			}

			var runs []scopedSummary
			for _, sc := range scopes {
				dir, err := storeDirFor(cmd, cfg, sc)
				if err != nil {
					return err
				}
				// Listing never creates a store.
				if _, err := os.Stat(filepath.Join(dir, store.DBFile)); os.IsNotExist(err) {
					continue
				}
				rs, err := store.NewSQLiteRunStore(dir)
				if err != nil {
					return fmt.Errorf("failed to open %s store: %w", sc, err)
				}
				summaries, err := rs.ListRuns(cmd.Context())
				rs.Close()
				if err != nil {
					return fmt.Errorf("failed to list %s runs: %w", sc, err)
				}
				for _, s := range summaries {
					runs = append(runs, scopedSummary{RunSummary: s, Scope: sc})
				}
			}

			if jsonOut {
				if runs == nil {
					runs = []scopedSummary{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
					"scope": string(scope),
				})
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No saved runs.")
				return nil
			}
			for _, r := range runs {
				name := r.Name
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(out, "%s  %s  %-7s %-16s %dx%d  t=%s\n",
					r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Scope, name, r.M, r.N, formatTimes(r.Times))
			}
			fmt.Fprintf(out, "Total: %d runs\n", len(runs))
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "List runs from both the local and the global store")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a saved run's lattice, snapshots and spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rs, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer rs.Close()

			table, run, err := loadDensity(cmd.Context(), rs, args[0])
			if err != nil {
				return err
			}
			integrals := table.Integrals()

			type snapshotInfo struct {
				Index    int     `json:"index"`
				Time     float64 `json:"time"`
				Steps    int     `json:"steps"`
				Integral float64 `json:"integral"`
			}
			snaps := make([]snapshotInfo, len(run.Snapshots))
			for k, s := range run.Snapshots {
				snaps[k] = snapshotInfo{Index: s.Index, Time: s.Time, Steps: s.Steps, Integral: integrals[k]}
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"id":         run.ID,
					"name":       run.Name,
					"created_at": run.CreatedAt,
					"xmin":       run.XMin,
					"xmax":       run.XMax,
					"m":          run.M,
					"n":          run.N,
					"tau":        run.Tau,
					"spec":       run.Spec,
					"snapshots":  snaps,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s\n", run.ID)
			if run.Name != "" {
				fmt.Fprintf(out, "  Name:    %s\n", run.Name)
			}
			fmt.Fprintf(out, "  Created: %s\n", run.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "  Domain:  [%g, %g]\n", run.XMin, run.XMax)
			fmt.Fprintf(out, "  Lattice: %d points x %d ages, tau=%g\n", run.M, run.N, run.Tau)
			fmt.Fprintln(out, "  Snapshots:")
			for _, s := range snaps {
				fmt.Fprintf(out, "    %d  t=%g  steps=%d  integral=%.12g\n", s.Index, s.Time, s.Steps, s.Integral)
			}
			if len(run.Spec) > 0 {
				fmt.Fprintf(out, "  Spec:    %s\n", run.Spec)
			}
			return nil
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rs, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer rs.Close()

			if err := rs.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"deleted": args[0],
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}

// formatTimes joins snapshot times as "0,0.5,1".
func formatTimes(times []float64) string {
	parts := make([]string, len(times))
	for i, t := range times {
		parts[i] = strconv.FormatFloat(t, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
