// Package mcp exposes the fact store, instinct store, checkpoint
// manager and compaction planner over the MCP stdio transport.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls internal services directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/checkpoint"
	"github.com/fyrsmithlabs/instinctd/internal/compaction"
	"github.com/fyrsmithlabs/instinctd/internal/factstore"
	"github.com/fyrsmithlabs/instinctd/internal/instinct"
)

// Server is the MCP boundary over the internal services.
type Server struct {
	mcp         *mcp.Server
	facts       *factstore.Store
	instincts   *instinct.Store
	checkpoints *checkpoint.Manager
	planner     *compaction.Planner
	logger      *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "instinctd")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "instinctd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server with the given services.
func NewServer(
	cfg *Config,
	facts *factstore.Store,
	instincts *instinct.Store,
	checkpoints *checkpoint.Manager,
	planner *compaction.Planner,
) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if facts == nil {
		return nil, fmt.Errorf("fact store is required")
	}
	if instincts == nil {
		return nil, fmt.Errorf("instinct store is required")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint manager is required")
	}
	if planner == nil {
		return nil, fmt.Errorf("compaction planner is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:         mcpServer,
		facts:       facts,
		instincts:   instincts,
		checkpoints: checkpoints,
		planner:     planner,
		logger:      cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
