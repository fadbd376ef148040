// Package mcp provides an MCP (Model Context Protocol) server for dtsm.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/dtsm/internal/config"
	"github.com/nvandessel/dtsm/internal/logging"
	"github.com/nvandessel/dtsm/internal/ratelimit"
	"github.com/nvandessel/dtsm/internal/store"
)

// Server wraps the MCP SDK server and exposes the simulator as tools.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	app          *config.DTSMConfig
	logger       *slog.Logger
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
}

// Config holds server configuration.
type Config struct {
	Name     string // Server name (e.g., "dtsm")
	Version  string // Server version
	StoreDir string // Directory holding the run database and audit log
	App      *config.DTSMConfig
	Logger   *slog.Logger
}

// NewServer creates a new MCP server with dtsm tools.
func NewServer(cfg *Config) (*Server, error) {
	runStore, err := store.NewSQLiteRunStore(cfg.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}

	app := cfg.App
	if app == nil {
		app = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		store:        runStore,
		app:          app,
		logger:       logger,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(cfg.StoreDir),
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()

	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	s.auditLogger.Close()
	return s.store.Close()
}
