package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/autopatchd/internal/executor"
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/pattern"
	"github.com/fyrsmithlabs/autopatchd/internal/remote"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

var (
	// local command flags
	lcFile       string
	lcRoot       string
	lcTicketID   string
	lcSkipChecks bool
)

func init() {
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(applyCmd)

	matchCmd.Flags().StringVarP(&lcFile, "file", "f", "-", "Ticket JSON file (- for stdin)")

	applyCmd.Flags().StringVarP(&lcFile, "file", "f", "-", "Instruction list JSON file (- for stdin)")
	applyCmd.Flags().StringVar(&lcRoot, "root", ".", "Source tree to modify")
	applyCmd.Flags().StringVar(&lcTicketID, "ticket", "", "Ticket ID recorded with the batch")
	applyCmd.Flags().BoolVar(&lcSkipChecks, "skip-checks", false, "Skip lint, build and restart")
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run the pattern catalogue against a ticket file",
	Long: `Run the built-in pattern catalogue against a ticket without a server and
print the autopatch candidate it produces.

The file holds a ticket object: title, description, latestMessage and
sourceMetadata are used.

Examples:
  autopatchctl match --file ticket.json
  echo '{"title":"MISSING_MESSAGE: dashboard.title (fr)"}' | autopatchctl match`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply an instruction list to a source tree",
	Long: `Apply autoFixInstructions to a local source tree with the same executor
the daemon uses. File changes roll back when a write or verification fails.
Instructions that need operator approval fail here because no approval
backend is attached.

Examples:
  autopatchctl apply --root ./app --file instructions.json
  autopatchctl apply --root ./app --skip-checks < instructions.json`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

func runMatch(cmd *cobra.Command, _ []string) error {
	data, err := readInput(cmd, lcFile)
	if err != nil {
		return err
	}
	var t ticket.Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("failed to decode ticket: %w", err)
	}

	out := cmd.OutOrStdout()
	cand := pattern.NewMatcher(nil).Match(&t)
	if cand == nil {
		fmt.Fprintln(out, "No autopatch candidate.")
		return nil
	}
	if outputJSON {
		body, err := json.Marshal(cand)
		if err != nil {
			return fmt.Errorf("failed to encode candidate: %w", err)
		}
		return printJSON(out, body)
	}
	fmt.Fprintf(out, "Pattern: %s\n", cand.PatternID)
	fmt.Fprintf(out, "Summary: %s\n", cand.Summary)
	for _, a := range cand.Actions {
		fmt.Fprintf(out, "  - %s: %s\n", a.Type, a.Description)
	}
	for _, in := range cand.Instructions {
		fmt.Fprintf(out, "  * %s\n", in.Type())
	}
	return nil
}

func runApply(cmd *cobra.Command, _ []string) error {
	data, err := readInput(cmd, lcFile)
	if err != nil {
		return err
	}
	var list instruction.List
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode instructions: %w", err)
	}
	if err := list.Validate(); err != nil {
		return err
	}

	exec := executor.New(executor.Config{SkipChecks: lcSkipChecks}, executor.Deps{
		Whitelist: remote.DefaultWhitelist(),
	}, nil)
	res := exec.Execute(cmd.Context(), lcRoot, list, executor.Options{TicketID: lcTicketID})

	out := cmd.OutOrStdout()
	if outputJSON {
		body, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		if err := printJSON(out, body); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, res.Message)
		for _, f := range res.ModifiedFiles {
			fmt.Fprintf(out, "  modified %s\n", f)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
		if res.RolledBack {
			fmt.Fprintln(out, "  changes rolled back")
		}
	}
	if !res.Success {
		if res.Err != nil {
			return fmt.Errorf("apply failed: %w", res.Err)
		}
		return fmt.Errorf("apply failed: %s", res.Message)
	}
	return nil
}
