package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/dtsm/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve dtsm tools over MCP on stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing
dtsm_simulate, dtsm_density and dtsm_runs.

Runs saved through the server land in the store selected by --global
and --root. Logs go to stderr so they never corrupt the protocol stream.

Example MCP client configuration:
  {"command": "dtsm", "args": ["mcp-server", "--root", "/path/to/project"]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := storeDirFor(cmd, cfg, commandScope(cmd))
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "dtsm",
				Version:  version,
				StoreDir: dir,
				App:      cfg,
				Logger:   newLogger(cmd, cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}

			return server.Run(cmd.Context())
		},
	}
}
