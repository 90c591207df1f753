// Package main implements autopatchctl, the operator CLI for the autopatchd
// HTTP API.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	// serverURL is the base URL of the autopatchd HTTP API
	serverURL string
	// apiToken is sent as a bearer token when set
	apiToken string
	// outputJSON prints raw server responses
	outputJSON bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "autopatchctl",
	Short: "CLI for autopatchd HTTP API operations",
	Long: `autopatchctl talks to a running autopatchd. It creates and dispatches
tickets, decides pending approvals and checks commands against the remote
whitelist.

The API token is read from --token or AUTOPATCHD_API_TOKEN.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:9191", "autopatchd server URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("AUTOPATCHD_API_TOKEN"), "API token")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output raw JSON")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(scrubCmd)
	rootCmd.AddCommand(whitelistCmd)
	whitelistCmd.AddCommand(whitelistCheckCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check autopatchd health",
	Long: `Check the health of autopatchd and its connections.

Examples:
  autopatchctl health
  autopatchctl health --server http://10.0.0.5:9191`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

var scrubCmd = &cobra.Command{
	Use:   "scrub [file]",
	Short: "Scrub secrets from a file or stdin",
	Long: `Redact secrets from a file or stdin before pasting it into a ticket.

Examples:
  autopatchctl scrub .env
  cat output.log | autopatchctl scrub -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScrub,
}

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Inspect the remote command whitelist",
}

var whitelistCheckCmd = &cobra.Command{
	Use:   "check <command>",
	Short: "Check a command against the remote whitelist",
	Long: `Report whether autopatchd would run a command on the production host.

Examples:
  autopatchctl whitelist check "pm2 restart all"
  autopatchctl whitelist check "rm -rf /var/www"`,
	Args: cobra.ExactArgs(1),
	RunE: runWhitelist,
}

func runHealth(cmd *cobra.Command, _ []string) error {
	body, err := newClient().get(cmd.Context(), "/health")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, body)
	}
	res := gjson.ParseBytes(body)
	fmt.Fprintf(out, "Server Status: %s\n", res.Get("status").String())
	fmt.Fprintf(out, "Server URL: %s\n", serverURL)
	res.Get("services").ForEach(func(name, status gjson.Result) bool {
		fmt.Fprintf(out, "  %-10s %s\n", name.String(), status.String())
		return true
	})
	return nil
}

func runScrub(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}
	if len(content) == 0 {
		return fmt.Errorf("no content to scrub")
	}

	body, err := newClient().post(cmd.Context(), "/api/v1/scrub", map[string]string{"content": string(content)})
	if err != nil {
		return err
	}
	res := gjson.ParseBytes(body)
	fmt.Fprint(cmd.OutOrStdout(), res.Get("content").String())
	if n := res.Get("findings_count").Int(); n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[autopatchctl] Scrubbed %d secret(s)\n", n)
	}
	return nil
}

func runWhitelist(cmd *cobra.Command, args []string) error {
	body, err := newClient().post(cmd.Context(), "/api/v1/whitelist/check", map[string]string{"command": args[0]})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, body)
	}
	res := gjson.ParseBytes(body)
	if res.Get("allowed").Bool() {
		fmt.Fprintf(out, "Allowed: %s\n", args[0])
		if desc := res.Get("rule.Description").String(); desc != "" {
			fmt.Fprintf(out, "Rule: %s\n", desc)
		}
		return nil
	}
	fmt.Fprintf(out, "Denied: %s\n", args[0])
	if reason := res.Get("reason").String(); reason != "" {
		fmt.Fprintf(out, "Reason: %s\n", reason)
	}
	return nil
}
