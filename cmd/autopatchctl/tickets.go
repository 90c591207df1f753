package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	// ticket create flags
	tkID          string
	tkTitle       string
	tkDescription string
	tkPriority    string
	tkCategory    string
	tkMessage     string
	tkDispatch    bool

	// ticket reply flags
	tkAuthor string
)

func init() {
	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketCreateCmd)
	ticketCmd.AddCommand(ticketGetCmd)
	ticketCmd.AddCommand(ticketMessagesCmd)
	ticketCmd.AddCommand(ticketDispatchCmd)
	ticketCmd.AddCommand(ticketMatchCmd)
	ticketCmd.AddCommand(ticketReplyCmd)

	ticketCreateCmd.Flags().StringVar(&tkID, "id", "", "Ticket ID (generated when empty)")
	ticketCreateCmd.Flags().StringVar(&tkTitle, "title", "", "Ticket title (required)")
	ticketCreateCmd.Flags().StringVar(&tkDescription, "description", "", "Ticket description")
	ticketCreateCmd.Flags().StringVar(&tkPriority, "priority", "normal", "Priority: low, normal, high or urgent")
	ticketCreateCmd.Flags().StringVar(&tkCategory, "category", "", "Ticket category")
	ticketCreateCmd.Flags().StringVar(&tkMessage, "message", "", "First customer message")
	ticketCreateCmd.Flags().BoolVar(&tkDispatch, "dispatch", false, "Route the ticket immediately")
	_ = ticketCreateCmd.MarkFlagRequired("title")

	ticketReplyCmd.Flags().StringVar(&tkAuthor, "author", "", "Customer name")
}

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Create, inspect and route tickets",
	Long: `Create, inspect and route support tickets.

Examples:
  # Create and route a ticket
  autopatchctl ticket create --title "Login page blank" --message "Nothing loads" --dispatch

  # Show a ticket and its conversation
  autopatchctl ticket get tkt_123
  autopatchctl ticket messages tkt_123

  # Preview the fix a ticket would get
  autopatchctl ticket match tkt_123`,
}

var ticketCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a ticket",
	Args:  cobra.NoArgs,
	RunE:  runTicketCreate,
}

var ticketGetCmd = &cobra.Command{
	Use:   "get <ticket-id>",
	Short: "Show a ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketGet,
}

var ticketMessagesCmd = &cobra.Command{
	Use:   "messages <ticket-id>",
	Short: "Show a ticket's conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketMessages,
}

var ticketDispatchCmd = &cobra.Command{
	Use:   "dispatch <ticket-id>",
	Short: "Route a ticket now",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketDispatch,
}

var ticketMatchCmd = &cobra.Command{
	Use:   "match <ticket-id>",
	Short: "Show the autopatch candidate for a ticket without acting",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketMatch,
}

var ticketReplyCmd = &cobra.Command{
	Use:   "reply <ticket-id> <message>",
	Short: "Add a customer reply and resume routing",
	Args:  cobra.ExactArgs(2),
	RunE:  runTicketReply,
}

func ticketPath(id string, rest ...string) string {
	return "/api/v1/tickets/" + url.PathEscape(id) + strings.Join(rest, "")
}

func runTicketCreate(cmd *cobra.Command, _ []string) error {
	body, err := newClient().post(cmd.Context(), "/api/v1/tickets", map[string]any{
		"id":          tkID,
		"title":       tkTitle,
		"description": tkDescription,
		"priority":    tkPriority,
		"category":    tkCategory,
		"message":     tkMessage,
		"dispatch":    tkDispatch,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, body)
	}
	res := gjson.ParseBytes(body)
	fmt.Fprintf(out, "Created ticket %s\n", res.Get("ticket.id").String())
	printTicket(out, res.Get("ticket"))
	if outcome := res.Get("outcome").String(); outcome != "" {
		fmt.Fprintf(out, "Outcome:  %s\n", outcome)
	}
	return nil
}

func runTicketGet(cmd *cobra.Command, args []string) error {
	body, err := newClient().get(cmd.Context(), ticketPath(args[0]))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, body)
	}
	printTicket(out, gjson.ParseBytes(body))
	return nil
}

func printTicket(out io.Writer, t gjson.Result) {
	fmt.Fprintf(out, "ID:       %s\n", t.Get("id").String())
	fmt.Fprintf(out, "Title:    %s\n", t.Get("title").String())
	fmt.Fprintf(out, "Status:   %s\n", t.Get("status").String())
	fmt.Fprintf(out, "Priority: %s\n", t.Get("priority").String())
	if agent := t.Get("assignedAgent").String(); agent != "" {
		fmt.Fprintf(out, "Agent:    %s\n", agent)
	}
	if status := t.Get("sourceMetadata.autopatch.status").String(); status != "" {
		fmt.Fprintf(out, "Autopatch: %s (%s)\n", status, t.Get("sourceMetadata.autopatch.patternId").String())
	}
}

func runTicketMessages(cmd *cobra.Command, args []string) error {
	body, err := newClient().get(cmd.Context(), ticketPath(args[0], "/messages"))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, body)
	}
	msgs := gjson.ParseBytes(body).Array()
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tAUTHOR\tMESSAGE")
	for _, m := range msgs {
		author := m.Get("authorType").String()
		if m.Get("internalOnly").Bool() {
			author += " (internal)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Get("createdAt").String(), author, truncate(m.Get("message").String(), 80))
	}
	return w.Flush()
}

func runTicketDispatch(cmd *cobra.Command, args []string) error {
	body, err := newClient().post(cmd.Context(), ticketPath(args[0], "/dispatch"), nil)
	if err != nil {
		return err
	}
	return printOutcome(cmd.OutOrStdout(), body)
}

func runTicketReply(cmd *cobra.Command, args []string) error {
	body, err := newClient().post(cmd.Context(), ticketPath(args[0], "/replies"), map[string]string{
		"message": args[1],
		"author":  tkAuthor,
	})
	if err != nil {
		return err
	}
	return printOutcome(cmd.OutOrStdout(), body)
}

func printOutcome(out io.Writer, body []byte) error {
	if outputJSON {
		return printJSON(out, body)
	}
	res := gjson.ParseBytes(body)
	fmt.Fprintf(out, "Ticket %s: %s\n", res.Get("ticketId").String(), res.Get("outcome").String())
	return nil
}

func runTicketMatch(cmd *cobra.Command, args []string) error {
	body, err := newClient().post(cmd.Context(), ticketPath(args[0], "/match"), nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, body)
	}
	res := gjson.ParseBytes(body)
	if !res.Get("matched").Bool() {
		fmt.Fprintf(out, "Ticket %s: no autopatch candidate\n", res.Get("ticketId").String())
		return nil
	}
	cand := res.Get("candidate")
	fmt.Fprintf(out, "Ticket %s matches %s\n", res.Get("ticketId").String(), cand.Get("patternId").String())
	fmt.Fprintf(out, "Summary: %s\n", cand.Get("summary").String())
	for _, a := range cand.Get("actions").Array() {
		fmt.Fprintf(out, "  - %s: %s\n", a.Get("type").String(), a.Get("description").String())
	}
	for _, in := range cand.Get("autoFixInstructions").Array() {
		fmt.Fprintf(out, "  * %s\n", in.Get("type").String())
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
