// Autopatchd is the support ticket remediation daemon.
//
// It polls the ticket store, applies known fixes to the configured source
// tree, asks operators to approve production commands and hands everything
// else to the matching support agent. Tickets arrive through the HTTP API.
//
// Usage:
//
//	# Start the daemon with ~/.config/autopatchd/config.yaml
//	autopatchd
//
//	# Serve the MCP tools on stdio
//	autopatchd mcp
//
//	# Rebuild the documentation index
//	autopatchd index
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "autopatchd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autopatchd",
		Short: "Support ticket remediation daemon",
		Long: `autopatchd routes support tickets. Tickets matching a known problem are
fixed automatically; production commands and database changes wait for
operator approval; everything else goes to the right support agent.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/autopatchd/config.yaml)")
	root.SetVersionTemplate(versionString() + "\n")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the daemon (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})
	root.AddCommand(newMCPCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(versionString())
		},
	})
	return root
}

func versionString() string {
	return fmt.Sprintf("autopatchd %s (commit %s, built %s)", version, gitCommit, buildDate)
}
