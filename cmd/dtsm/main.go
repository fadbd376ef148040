package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/dtsm/internal/config"
	"github.com/nvandessel/dtsm/internal/constants"
	"github.com/nvandessel/dtsm/internal/logging"
	"github.com/nvandessel/dtsm/internal/store"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dtsm",
		Short: "Semi-Markov lattice simulator for anomalous diffusion",
		Long: `dtsm simulates continuous-time random walks with heavy-tailed waiting
times on a discrete space-age lattice and reports the marginal density of
walkers at requested times.

Runs can be saved to a local (.dtsm under --root) or global (~/.dtsm) store,
exported as text, CSV, JSON or Apache Arrow, backed up, and served to agents
over MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().Bool("global", false, "Use the global store (~/.dtsm)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newDensityCmd(),
		newRunsCmd(),
		newCompareCmd(),
		newConfigCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig loads the app config and applies the --log-level flag.
func loadConfig(cmd *cobra.Command) (*config.DTSMConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// commandScope reports the store scope selected by --global.
func commandScope(cmd *cobra.Command) constants.Scope {
	if global, _ := cmd.Flags().GetBool("global"); global {
		return constants.ScopeGlobal
	}
	return constants.ScopeLocal
}

// storeDirFor returns the store directory of a scope. A configured
// store.dir replaces the local directory.
func storeDirFor(cmd *cobra.Command, cfg *config.DTSMConfig, scope constants.Scope) (string, error) {
	if scope == constants.ScopeGlobal {
		return store.GlobalPath()
	}
	if cfg.Store.Dir != "" {
		return cfg.Store.Dir, nil
	}
	root, _ := cmd.Flags().GetString("root")
	return store.LocalPath(root), nil
}

// openStore opens the run store selected by --global.
func openStore(cmd *cobra.Command, cfg *config.DTSMConfig) (*store.SQLiteRunStore, error) {
	dir, err := storeDirFor(cmd, cfg, commandScope(cmd))
	if err != nil {
		return nil, err
	}
	rs, err := store.NewSQLiteRunStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return rs, nil
}

// newLogger returns the stderr logger for a command.
func newLogger(cmd *cobra.Command, cfg *config.DTSMConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// signalContext cancels the returned context on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		defer stopSignals(sigChan)
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
