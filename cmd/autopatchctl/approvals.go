package main

import (
	"fmt"
	"net/url"
	"os/user"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// apBy names the operator recorded on a decision.
var apBy string

func init() {
	rootCmd.AddCommand(approvalCmd)
	approvalCmd.AddCommand(approvalListCmd)
	approvalCmd.AddCommand(approvalApproveCmd)
	approvalCmd.AddCommand(approvalDenyCmd)

	approvalCmd.PersistentFlags().StringVar(&apBy, "by", "", "Operator name (defaults to the current user)")
}

var approvalCmd = &cobra.Command{
	Use:     "approval",
	Aliases: []string{"approvals"},
	Short:   "List and decide pending approvals",
	Long: `List and decide production commands and database changes waiting for
operator approval.

Examples:
  autopatchctl approval list
  autopatchctl approval approve 6f1c...
  autopatchctl approval deny 6f1c... --by oncall`,
}

var approvalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approval requests",
	Args:  cobra.NoArgs,
	RunE:  runApprovalList,
}

var approvalApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecide(cmd, args[0], true)
	},
}

var approvalDenyCmd = &cobra.Command{
	Use:   "deny <request-id>",
	Short: "Deny a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecide(cmd, args[0], false)
	},
}

func runApprovalList(cmd *cobra.Command, _ []string) error {
	body, err := newClient().get(cmd.Context(), "/api/v1/approvals")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, body)
	}
	reqs := gjson.ParseBytes(body).Array()
	if len(reqs) == 0 {
		fmt.Fprintln(out, "No pending approvals.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTICKET\tTYPE\tREQUESTED\tDETAIL")
	for _, r := range reqs {
		detail := r.Get("command").String()
		if detail == "" {
			detail = r.Get("sql").String()
		}
		if detail == "" {
			detail = r.Get("description").String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Get("id").String(),
			r.Get("ticketId").String(),
			r.Get("instructionType").String(),
			r.Get("requestedAt").String(),
			truncate(detail, 60))
	}
	return w.Flush()
}

func runDecide(cmd *cobra.Command, id string, approved bool) error {
	by := apBy
	if by == "" {
		by = currentUser()
	}
	body, err := newClient().post(cmd.Context(), "/api/v1/approvals/"+url.PathEscape(id)+"/decision", map[string]any{
		"approved": approved,
		"by":       by,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, body)
	}
	res := gjson.ParseBytes(body)
	verdict := "denied"
	if res.Get("approved").Bool() {
		verdict = "approved"
	}
	fmt.Fprintf(out, "Request %s %s by %s (ticket %s)\n", id, verdict, res.Get("by").String(), res.Get("ticketId").String())
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "autopatchctl"
}
