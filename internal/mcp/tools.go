package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
	"github.com/fyrsmithlabs/autopatchd/internal/logging"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
	maxMessages        = 20
)

// addTool registers meta in the registry and h with the MCP server.
func addTool[In, Out any](s *Server, meta *ToolMetadata, h mcp.ToolHandlerFor[In, Out]) error {
	if err := s.registry.Register(meta); err != nil {
		return err
	}
	mcp.AddTool(s.mcp, &mcp.Tool{Name: meta.Name, Description: meta.Description}, h)
	return nil
}

// registerTools registers all tools with the server.
func (s *Server) registerTools() error {
	regs := []func() error{
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "ticket_get",
				Description: "Show a support ticket with its status, assignment and recent messages.",
				Category:    CategoryTicket,
				Keywords:    []string{"ticket", "status", "messages"},
			}, s.ticketGet)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "ticket_match",
				Description: "Preview which autopatch pattern a ticket matches without changing anything.",
				Category:    CategoryTicket,
				Keywords:    []string{"pattern", "detect", "candidate", "dry run"},
			}, s.ticketMatch)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "ticket_dispatch",
				Description: "Route a ticket: run the matched autopatch or assign it to an agent.",
				Category:    CategoryTicket,
				Keywords:    []string{"route", "remediate", "autopatch", "run"},
			}, s.ticketDispatch)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "approval_list",
				Description: "List remote commands and database changes waiting for human approval.",
				Category:    CategoryApproval,
				Keywords:    []string{"pending", "gate", "hetzner", "supabase"},
			}, s.approvalList)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "approval_decide",
				Description: "Approve or deny a pending approval request.",
				Category:    CategoryApproval,
				Keywords:    []string{"approve", "deny", "gate"},
			}, s.approvalDecide)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "whitelist_check",
				Description: "Check whether a shell command may run on the production server.",
				Category:    CategoryRemote,
				Keywords:    []string{"ssh", "hetzner", "command", "pm2", "systemctl"},
			}, s.whitelistCheck)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "knowledge_search",
				Description: "Search the product documentation knowledge base.",
				Category:    CategoryKnowledge,
				Keywords:    []string{"docs", "documentation", "semantic"},
			}, s.knowledgeSearch)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "secret_scrub",
				Description: "Redact API keys, tokens and other secrets from text.",
				Category:    CategorySecrets,
				Keywords:    []string{"redact", "gitleaks", "credentials"},
			}, s.secretScrub)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "tool_search",
				Description: "Find autopatchd tools by name, description or keyword. Accepts regular expressions.",
				Category:    CategorySearch,
			}, s.toolSearch)
		},
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}}}
}

// ===== TICKET TOOLS =====

type ticketIDInput struct {
	TicketID string `json:"ticket_id" jsonschema:"Ticket identifier"`
}

type messageOutput struct {
	Author       string `json:"author"`
	AuthorName   string `json:"author_name,omitempty"`
	Message      string `json:"message"`
	InternalOnly bool   `json:"internal_only,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type ticketGetOutput struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Status        string          `json:"status"`
	Priority      string          `json:"priority"`
	AssignedAgent string          `json:"assigned_agent,omitempty"`
	Escalations   int             `json:"escalations"`
	Messages      []messageOutput `json:"messages"`
}

func (s *Server) ticketGet(ctx context.Context, _ *mcp.CallToolRequest, args ticketIDInput) (_ *mcp.CallToolResult, out ticketGetOutput, err error) {
	defer s.metrics.track(ctx, "ticket_get")(&err)

	t, err := s.getTicket(ctx, args.TicketID)
	if err != nil {
		return nil, out, err
	}
	msgs, err := s.deps.Store.Messages(ctx, t.ID)
	if err != nil {
		return nil, out, fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	out = ticketGetOutput{
		ID:            t.ID,
		Title:         s.scrub(t.Title),
		Description:   s.scrub(t.Description),
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		AssignedAgent: t.AssignedAgent,
		Escalations:   len(t.EscalationPath),
		Messages:      make([]messageOutput, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, messageOutput{
			Author:       string(m.AuthorType),
			AuthorName:   m.AuthorName,
			Message:      s.scrub(m.Body),
			InternalOnly: m.InternalOnly,
			CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return textResult("Ticket %s: %s (%s)", t.ID, out.Title, t.Status), out, nil
}

type actionOutput struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type ticketMatchOutput struct {
	TicketID        string         `json:"ticket_id"`
	Matched         bool           `json:"matched"`
	PatternID       string         `json:"pattern_id,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	CustomerMessage string         `json:"customer_message,omitempty"`
	Actions         []actionOutput `json:"actions"`
	Instructions    []string       `json:"instructions"`
}

func (s *Server) ticketMatch(ctx context.Context, _ *mcp.CallToolRequest, args ticketIDInput) (_ *mcp.CallToolResult, out ticketMatchOutput, err error) {
	defer s.metrics.track(ctx, "ticket_match")(&err)

	t, err := s.getTicket(ctx, args.TicketID)
	if err != nil {
		return nil, out, err
	}
	out = ticketMatchOutput{TicketID: t.ID, Actions: []actionOutput{}, Instructions: []string{}}

	cand := s.deps.Router.Detect(ctx, t)
	if cand == nil {
		return textResult("No autopatch pattern matches ticket %s", t.ID), out, nil
	}
	out.Matched = true
	out.PatternID = cand.PatternID
	out.Summary = s.scrub(cand.Summary)
	out.CustomerMessage = s.scrub(cand.CustomerMessage)
	for _, a := range cand.Actions {
		out.Actions = append(out.Actions, actionOutput{Type: string(a.Type), Description: s.scrub(a.Description)})
	}
	for _, in := range cand.Instructions {
		out.Instructions = append(out.Instructions, string(in.Type()))
	}
	return textResult("Ticket %s matches %s: %s", t.ID, cand.PatternID, out.Summary), out, nil
}

type ticketDispatchOutput struct {
	TicketID      string `json:"ticket_id"`
	Outcome       string `json:"outcome"`
	Status        string `json:"status"`
	AssignedAgent string `json:"assigned_agent,omitempty"`
}

func (s *Server) ticketDispatch(ctx context.Context, _ *mcp.CallToolRequest, args ticketIDInput) (_ *mcp.CallToolResult, out ticketDispatchOutput, err error) {
	defer s.metrics.track(ctx, "ticket_dispatch")(&err)

	if strings.TrimSpace(args.TicketID) == "" {
		return nil, out, fmt.Errorf("ticket_id is required")
	}
	ctx = logging.WithTicketID(ctx, args.TicketID)
	outcome, err := s.deps.Router.Dispatch(ctx, args.TicketID)
	if err != nil {
		return nil, out, err
	}
	t, err := s.deps.Store.Get(ctx, args.TicketID)
	if err != nil {
		return nil, out, err
	}
	s.logger.Info("ticket dispatched", zap.String("ticket_id", t.ID), zap.String("outcome", string(outcome)))

	out = ticketDispatchOutput{
		TicketID:      t.ID,
		Outcome:       string(outcome),
		Status:        string(t.Status),
		AssignedAgent: t.AssignedAgent,
	}
	return textResult("Ticket %s dispatched: %s", t.ID, outcome), out, nil
}

func (s *Server) getTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("ticket_id is required")
	}
	return s.deps.Store.Get(ctx, id)
}

// ===== APPROVAL TOOLS =====

type approvalListInput struct{}

type approvalOutput struct {
	ID              string `json:"id"`
	TicketID        string `json:"ticket_id"`
	InstructionType string `json:"instruction_type"`
	Description     string `json:"description"`
	Command         string `json:"command,omitempty"`
	SQL             string `json:"sql,omitempty"`
	RequestedAt     string `json:"requested_at"`
}

type approvalListOutput struct {
	Requests []approvalOutput `json:"requests"`
	Count    int              `json:"count"`
}

func (s *Server) approvalList(ctx context.Context, _ *mcp.CallToolRequest, _ approvalListInput) (_ *mcp.CallToolResult, out approvalListOutput, err error) {
	defer s.metrics.track(ctx, "approval_list")(&err)

	out.Requests = []approvalOutput{}
	if s.deps.Pending == nil {
		return textResult("No approval requests pending"), out, nil
	}
	for _, r := range s.deps.Pending.Pending() {
		out.Requests = append(out.Requests, approvalOutput{
			ID:              r.ID,
			TicketID:        r.TicketID,
			InstructionType: string(r.InstructionType),
			Description:     s.scrub(r.Description),
			Command:         s.scrub(r.Command),
			SQL:             s.scrub(r.SQL),
			RequestedAt:     r.RequestedAt.UTC().Format(time.RFC3339),
		})
	}
	out.Count = len(out.Requests)
	return textResult("%d approval request(s) pending", out.Count), out, nil
}

type approvalDecideInput struct {
	RequestID string `json:"request_id" jsonschema:"Approval request identifier"`
	Approved  bool   `json:"approved" jsonschema:"True to approve, false to deny"`
	By        string `json:"by,omitempty" jsonschema:"Who decided (default: mcp)"`
}

type approvalDecideOutput struct {
	RequestID string `json:"request_id"`
	TicketID  string `json:"ticket_id"`
	Approved  bool   `json:"approved"`
	By        string `json:"by"`
	DecidedAt string `json:"decided_at"`
}

func (s *Server) approvalDecide(ctx context.Context, _ *mcp.CallToolRequest, args approvalDecideInput) (_ *mcp.CallToolResult, out approvalDecideOutput, err error) {
	defer s.metrics.track(ctx, "approval_decide")(&err)

	if s.deps.Decider == nil {
		return nil, out, fmt.Errorf("approvals are not configured")
	}
	if strings.TrimSpace(args.RequestID) == "" {
		return nil, out, fmt.Errorf("request_id is required")
	}
	by := args.By
	if by == "" {
		by = "mcp"
	}

	d, err := s.deps.Decider.Decide(logging.WithRequestID(ctx, args.RequestID), args.RequestID, args.Approved, by)
	if err != nil {
		return nil, out, err
	}
	out = approvalDecideOutput{
		RequestID: d.RequestID,
		TicketID:  d.TicketID,
		Approved:  d.Approved,
		By:        d.By,
		DecidedAt: d.DecidedAt.UTC().Format(time.RFC3339),
	}
	verb := "denied"
	if d.Approved {
		verb = "approved"
	}
	return textResult("Request %s %s by %s", d.RequestID, verb, d.By), out, nil
}

// ===== REMOTE TOOLS =====

type whitelistCheckInput struct {
	Command string `json:"command" jsonschema:"Shell command to check, e.g. pm2 restart all"`
}

type whitelistCheckOutput struct {
	Command string `json:"command"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

func (s *Server) whitelistCheck(ctx context.Context, _ *mcp.CallToolRequest, args whitelistCheckInput) (_ *mcp.CallToolResult, out whitelistCheckOutput, err error) {
	defer s.metrics.track(ctx, "whitelist_check")(&err)

	if strings.TrimSpace(args.Command) == "" {
		return nil, out, fmt.Errorf("command is required")
	}
	d := s.deps.Whitelist.Check(args.Command)
	out = whitelistCheckOutput{Command: args.Command, Allowed: d.Allowed, Reason: d.Reason}
	if d.Rule != nil {
		out.Rule = d.Rule.Description
		if out.Rule == "" {
			out.Rule = d.Rule.Program
		}
	}
	if !d.Allowed {
		return textResult("Denied: %s", d.Reason), out, nil
	}
	return textResult("Allowed: %s", args.Command), out, nil
}

// ===== KNOWLEDGE TOOLS =====

type knowledgeSearchInput struct {
	Query string `json:"query" jsonschema:"Free-text question or keywords"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results (default: 5)"`
}

type knowledgeDocOutput struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Source  string  `json:"source,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type knowledgeSearchOutput struct {
	Query   string               `json:"query"`
	Results []knowledgeDocOutput `json:"results"`
	Count   int                  `json:"count"`
}

func (s *Server) knowledgeSearch(ctx context.Context, _ *mcp.CallToolRequest, args knowledgeSearchInput) (_ *mcp.CallToolResult, out knowledgeSearchOutput, err error) {
	defer s.metrics.track(ctx, "knowledge_search")(&err)

	if s.deps.Corpus == nil {
		return nil, out, fmt.Errorf("knowledge base is not configured")
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, out, fmt.Errorf("query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	docs, err := s.deps.Corpus.Query(ctx, args.Query, limit)
	if err != nil {
		return nil, out, fmt.Errorf("knowledge query: %w", err)
	}
	out = knowledgeSearchOutput{Query: args.Query, Results: make([]knowledgeDocOutput, 0, len(docs))}
	for _, d := range docs {
		out.Results = append(out.Results, knowledgeDocOutput{
			ID:      d.ID,
			Title:   d.Title,
			Source:  d.Metadata[knowledge.MetaSource],
			Content: s.scrub(d.Content),
			Score:   float64(d.Score),
		})
	}
	out.Count = len(out.Results)
	return textResult("Found %d document(s)", out.Count), out, nil
}

// ===== SECRETS TOOLS =====

type secretScrubInput struct {
	Content string `json:"content" jsonschema:"Text to redact"`
}

type secretScrubOutput struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}

func (s *Server) secretScrub(ctx context.Context, _ *mcp.CallToolRequest, args secretScrubInput) (_ *mcp.CallToolResult, out secretScrubOutput, err error) {
	defer s.metrics.track(ctx, "secret_scrub")(&err)

	if args.Content == "" {
		return nil, out, fmt.Errorf("content is required")
	}
	res := s.deps.Scrubber.Scrub(args.Content)
	out = secretScrubOutput{Content: res.Scrubbed, FindingsCount: res.TotalFindings}
	return textResult("%d secret(s) redacted", res.TotalFindings), out, nil
}

// ===== TOOL SEARCH =====

type toolSearchInput struct {
	Query    string `json:"query" jsonschema:"Search text or regular expression"`
	Category string `json:"category,omitempty" jsonschema:"Restrict to one category: ticket, approval, remote, knowledge, secrets, search"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results (default: 5)"`
}

type toolMatchOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Score       int    `json:"score"`
}

type toolSearchOutput struct {
	Query      string            `json:"query"`
	Results    []toolMatchOutput `json:"results"`
	Count      int               `json:"count"`
	TotalTools int               `json:"total_tools"`
}

func (s *Server) toolSearch(ctx context.Context, _ *mcp.CallToolRequest, args toolSearchInput) (_ *mcp.CallToolResult, out toolSearchOutput, err error) {
	defer s.metrics.track(ctx, "tool_search")(&err)

	if args.Query == "" {
		return nil, out, fmt.Errorf("query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	results := s.registry.Search(args.Query, ToolCategory(args.Category))
	if len(results) > limit {
		results = results[:limit]
	}
	out = toolSearchOutput{Query: args.Query, Results: make([]toolMatchOutput, 0, len(results)), TotalTools: s.registry.Count()}
	names := make([]string, 0, len(results))
	for _, r := range results {
		out.Results = append(out.Results, toolMatchOutput{
			Name:        r.Tool.Name,
			Description: r.Tool.Description,
			Category:    string(r.Tool.Category),
			Score:       r.Score,
		})
		names = append(names, r.Tool.Name)
	}
	out.Count = len(out.Results)
	if out.Count == 0 {
		return textResult("No tools found matching: %s", args.Query), out, nil
	}
	return textResult("Found %d tool(s): %s", out.Count, strings.Join(names, ", ")), out, nil
}
