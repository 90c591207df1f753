package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
	"github.com/fyrsmithlabs/autopatchd/internal/remote"
	"github.com/fyrsmithlabs/autopatchd/internal/router"
	"github.com/fyrsmithlabs/autopatchd/internal/secrets"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// Dispatcher routes tickets.
type Dispatcher interface {
	Dispatch(ctx context.Context, ticketID string) (router.Outcome, error)
	Detect(ctx context.Context, t *ticket.Ticket) *autopatch.Candidate
}

// PendingLister lists open approval requests.
type PendingLister interface {
	Pending() []approval.Request
}

// Deps are the components the tools call. Store and Router are required;
// tools backed by a nil dependency report that it is not configured.
type Deps struct {
	Store     ticket.Store
	Router    Dispatcher
	Pending   PendingLister
	Decider   approval.Decider
	Whitelist *remote.Whitelist
	Corpus    knowledge.Corpus
	Scrubber  secrets.Scrubber
}

// Config configures the MCP server.
type Config struct {
	// Name is the implementation name reported to clients (default: "autopatchd").
	Name string

	// Version is the reported server version (default: "dev").
	Version string

	Logger *zap.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "autopatchd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// Server is an MCP server over the autopatchd components.
type Server struct {
	mcp      *mcp.Server
	deps     Deps
	registry *ToolRegistry
	metrics  *Metrics
	logger   *zap.Logger
}

// NewServer creates a server and registers every tool.
func NewServer(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "autopatchd"
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("ticket store is required")
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if deps.Scrubber == nil {
		deps.Scrubber = &secrets.NoopScrubber{}
	}
	if deps.Whitelist == nil {
		deps.Whitelist = remote.DefaultWhitelist()
	}

	s := &Server{
		mcp:      mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		deps:     deps,
		registry: NewToolRegistry(),
		metrics:  NewMetrics(cfg.Logger),
		logger:   cfg.Logger.Named("mcp"),
	}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Registry returns the tool registry.
func (s *Server) Registry() *ToolRegistry { return s.registry }

// Run serves on stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport", zap.Int("tools", s.registry.Count()))
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t. Used for in-process clients.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// scrub redacts secrets from text headed to the client.
func (s *Server) scrub(text string) string {
	if text == "" {
		return text
	}
	return s.deps.Scrubber.Scrub(text).Scrubbed
}
