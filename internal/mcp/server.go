// Package mcp provides an MCP (Model Context Protocol) server that lets an
// agent drive a nexus simulation.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/nexus/internal/logging"
	"github.com/nvandessel/nexus/internal/ratelimit"
	"github.com/nvandessel/nexus/internal/scheduler"
)

// Server wraps the MCP SDK server around a simulation driver.
type Server struct {
	server       *sdk.Server
	driver       *scheduler.Driver
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name     string // Server name (e.g., "nexus")
	Version  string // Server version
	Driver   *scheduler.Driver
	AuditDir string // Directory for audit.jsonl; empty disables the audit log
	Logger   *slog.Logger
}

// NewServer creates a new MCP server with the nexus tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Driver == nil {
		return nil, errors.New("mcp: a driver is required")
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
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		driver:       cfg.Driver,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.auditLogger.Close()
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
