package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/dtsm/internal/constants"
	"github.com/nvandessel/dtsm/internal/density"
	"github.com/nvandessel/dtsm/internal/simulation"
	"github.com/nvandessel/dtsm/internal/store"
)

func newDensityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "density <run-id>",
		Short: "Export the marginal density of a saved run",
		Long: `Write the marginal density table of a saved run.

Examples:
  dtsm density run-1a2b3c4d
  dtsm density run-1a2b3c4d --format arrow --output run.arrow
  dtsm density run-1a2b3c4d --global --format csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			format, _ := cmd.Flags().GetString("format")
			outputPath, _ := cmd.Flags().GetString("output")
			if jsonOut && !cmd.Flags().Changed("format") {
				format = constants.FormatJSON
			}
			if !constants.ValidFormats[format] {
				return fmt.Errorf("invalid format %q (valid: text, csv, json, arrow)", format)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rs, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer rs.Close()

			table, _, err := loadDensity(cmd.Context(), rs, args[0])
			if err != nil {
				return err
			}

			if outputPath != "" {
				if err := writeTableFile(outputPath, table, format); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d snapshots of %s to %s\n", len(table.Columns), args[0], outputPath)
				return nil
			}
			return density.Write(cmd.OutOrStdout(), table, format)
		},
	}

	cmd.Flags().String("format", constants.FormatText, "Output format: text, csv, json or arrow")
	cmd.Flags().String("output", "", "Write the density table to a file instead of stdout")

	return cmd
}

// loadDensity loads a saved run and projects it to a density table.
func loadDensity(ctx context.Context, rs store.RunStore, id string) (*density.Table, *store.Run, error) {
	run, err := rs.GetRun(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	res, err := simulation.FromRecord(run)
	if err != nil {
		return nil, nil, err
	}
	return density.Project(res), run, nil
}
