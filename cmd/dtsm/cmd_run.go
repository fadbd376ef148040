package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/dtsm/internal/config"
	"github.com/nvandessel/dtsm/internal/constants"
	"github.com/nvandessel/dtsm/internal/density"
	"github.com/nvandessel/dtsm/internal/logging"
	"github.com/nvandessel/dtsm/internal/simulation"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [spec-file]",
		Short: "Run a simulation and print the marginal density",
		Long: `Run a simulation from a run spec file (.yaml, .yml, .json, .gcfg, .ini)
and/or flags, then write the marginal density at each snapshot time.

Flags override values from the spec file. Unset fields take the defaults:
diffusivity 0.9, drift 0, tail t^-0.7/Gamma(0.3), local rate 0,
chi = 1/sqrt(c), tau = 1/c, walkers starting at the centre.

Examples:
  dtsm run --xmin -5 --xmax 5 --times 0,0.5,1 --c 100
  dtsm run sym.yaml --format csv --output sym.csv
  dtsm run sym.gcfg --save --name sym
  dtsm run sym.yaml --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			save, _ := cmd.Flags().GetBool("save")
			format, _ := cmd.Flags().GetString("format")
			outputPath, _ := cmd.Flags().GetString("output")

			if !constants.ValidFormats[format] {
				return fmt.Errorf("invalid format %q (valid: text, csv, json, arrow)", format)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			spec := &config.RunSpec{}
			if len(args) == 1 {
				if spec, err = config.LoadRunSpec(args[0]); err != nil {
					return err
				}
			}
			if err := applyRunFlags(cmd, spec); err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Simulation.Workers, _ = cmd.Flags().GetInt("workers")
			}

			simCfg, err := spec.ToConfig(cfg)
			if err != nil {
				return fmt.Errorf("invalid run spec: %w", err)
			}

			storeDir, err := storeDirFor(cmd, cfg, commandScope(cmd))
			if err != nil {
				return err
			}
			trace := logging.NewTraceLogger(storeDir, cfg.Logging.Level)
			defer trace.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			res, err := simulation.NewRunner(newLogger(cmd, cfg), trace).Run(ctx, simCfg)
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}
			table := density.Project(res)

			var runID string
			if save {
				specJSON, err := spec.JSON()
				if err != nil {
					return fmt.Errorf("encoding run spec: %w", err)
				}
				rs, err := openStore(cmd, cfg)
				if err != nil {
					return err
				}
				defer rs.Close()
				if runID, err = rs.SaveRun(ctx, res.Record(spec.Name, specJSON)); err != nil {
					return fmt.Errorf("failed to save run: %w", err)
				}
			}

			if outputPath != "" {
				if err := writeTableFile(outputPath, table, format); err != nil {
					return err
				}
			}

			if jsonOut {
				out := map[string]interface{}{
					"m":      res.Grid.M,
					"n":      res.Grid.N,
					"chi":    res.Grid.Spacing(),
					"tau":    res.Grid.Tau,
					"steps":  res.Steps,
					"masses": res.Masses(),
				}
				if runID != "" {
					out["run_id"] = runID
				}
				if outputPath != "" {
					out["output"] = outputPath
				} else {
					out["table"] = table
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}

			if outputPath == "" {
				if err := density.Write(cmd.OutOrStdout(), table, format); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d snapshots on %dx%d lattice to %s\n",
					len(table.Columns), res.Grid.M, res.Grid.N, outputPath)
			}
			if runID != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved run %s\n", runID)
			}
			return nil
		},
	}

	cmd.Flags().Float64("xmin", 0, "Left end of the spatial domain")
	cmd.Flags().Float64("xmax", 0, "Right end of the spatial domain")
	cmd.Flags().Float64Slice("times", nil, "Snapshot times, strictly increasing (e.g. 0,0.5,1)")
	cmd.Flags().Float64("c", 0, "Lattice scaling constant (> 0)")
	cmd.Flags().Float64("chi", 0, "Spatial step (default 1/sqrt(c))")
	cmd.Flags().Float64("tau", 0, "Time step (default 1/c)")
	cmd.Flags().Float64("age-max", 0, "Maximum tracked age (default: last snapshot time)")
	cmd.Flags().String("where", "", "Initial placement: centre or left")
	cmd.Flags().String("name", "", "Run name stored with --save")
	cmd.Flags().Int("workers", 0, "Goroutines per lattice step (overrides config)")
	cmd.Flags().Bool("save", false, "Save the run in the store")
	cmd.Flags().String("format", constants.FormatText, "Output format: text, csv, json or arrow")
	cmd.Flags().String("output", "", "Write the density table to a file instead of stdout")

	return cmd
}

// applyRunFlags copies explicitly set flags onto spec.
func applyRunFlags(cmd *cobra.Command, spec *config.RunSpec) error {
	flags := cmd.Flags()
	floats := map[string]*float64{
		"xmin":    &spec.XMin,
		"xmax":    &spec.XMax,
		"c":       &spec.C,
		"chi":     &spec.Chi,
		"tau":     &spec.Tau,
		"age-max": &spec.AgeMax,
	}
	for name, dst := range floats {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetFloat64(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if flags.Changed("times") {
		times, err := flags.GetFloat64Slice("times")
		if err != nil {
			return err
		}
		spec.Times = times
	}
	if flags.Changed("where") {
		spec.Where, _ = flags.GetString("where")
	}
	if flags.Changed("name") {
		spec.Name, _ = flags.GetString("name")
	}
	return nil
}

// writeTableFile writes the table to path in the given format.
func writeTableFile(path string, t *density.Table, format string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := density.Write(f, t, format); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
