package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/autopatchd/internal/config"
	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
	"github.com/fyrsmithlabs/autopatchd/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the autopatchd tools over MCP stdio",
		Long: `Serve ticket, approval, whitelist and knowledge tools to an MCP client
over stdin/stdout. The process shares the daemon's ticket store but does not
poll, listen for Telegram decisions or serve HTTP.

Example client configuration:

  {"command": "autopatchd", "args": ["mcp"]}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// stdout carries the protocol.
	logger, tel, err := setupLogging(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
		_ = logger.Sync()
	}()

	a, err := newApp(ctx, cfg, logger, tel, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var corpus knowledge.Corpus
	if a.corpus != nil {
		corpus = a.corpus
	}
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "autopatchd",
		Version: version,
		Logger:  logger,
	}, mcp.Deps{
		Store:     a.store,
		Router:    a.router,
		Pending:   a.pending(),
		Decider:   a.decider,
		Whitelist: a.whitelist,
		Corpus:    corpus,
		Scrubber:  a.scrubber,
	})
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}
	return srv.Run(ctx)
}
