package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/remote"
	"github.com/fyrsmithlabs/autopatchd/internal/router"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

const maxTextLen = 64 * 1024

// CreateTicketRequest is the body of POST /api/v1/tickets.
type CreateTicketRequest struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    ticket.Priority `json:"priority"`
	Category    string          `json:"category"`
	Metadata    ticket.Metadata `json:"metadata"`

	// Message is stored as the first customer message.
	Message string `json:"message"`

	// Dispatch routes the ticket before responding.
	Dispatch bool `json:"dispatch"`
}

// TicketResponse wraps a ticket with the outcome of an optional dispatch.
type TicketResponse struct {
	Ticket  *ticket.Ticket `json:"ticket"`
	Outcome router.Outcome `json:"outcome,omitempty"`
}

func (s *Server) handleCreateTicket(c echo.Context) error {
	var req CreateTicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if len(req.Description) > maxTextLen || len(req.Message) > maxTextLen {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "description or message too long")
	}

	ctx := c.Request().Context()
	t := &ticket.Ticket{
		ID:             req.ID,
		Title:          req.Title,
		Description:    req.Description,
		Priority:       req.Priority,
		Category:       req.Category,
		SourceMetadata: req.Metadata,
	}
	if err := s.deps.Store.Create(ctx, t); err != nil {
		return err
	}
	if req.Message != "" {
		if err := s.deps.Store.AppendMessage(ctx, &ticket.Message{
			TicketID:   t.ID,
			AuthorType: ticket.AuthorCustomer,
			Body:       req.Message,
		}); err != nil {
			return err
		}
	}

	resp := TicketResponse{Ticket: t}
	if req.Dispatch {
		outcome, err := s.deps.Router.Dispatch(ctx, t.ID)
		if err != nil && !errors.Is(err, router.ErrBusy) {
			return err
		}
		resp.Outcome = outcome
		if resp.Ticket, err = s.deps.Store.Get(ctx, t.ID); err != nil {
			return err
		}
	}
	s.log.Info(ctx, "ticket created", zap.String("ticket_id", t.ID), zap.String("outcome", string(resp.Outcome)))
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGetTicket(c echo.Context) error {
	t, err := s.deps.Store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleMessages(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := s.deps.Store.Get(ctx, id); err != nil {
		return err
	}
	msgs, err := s.deps.Store.Messages(ctx, id)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []*ticket.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

// DispatchResponse is the body returned by the dispatch and reply routes.
type DispatchResponse struct {
	TicketID string         `json:"ticketId"`
	Outcome  router.Outcome `json:"outcome"`
}

func (s *Server) handleDispatch(c echo.Context) error {
	id := c.Param("id")
	outcome, err := s.deps.Router.Dispatch(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DispatchResponse{TicketID: id, Outcome: outcome})
}

// ReplyRequest is the body of POST /api/v1/tickets/:id/replies.
type ReplyRequest struct {
	Message string `json:"message"`
	Author  string `json:"author"`
}

func (s *Server) handleReply(c echo.Context) error {
	var req ReplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if len(req.Message) > maxTextLen {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "message too long")
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := s.deps.Store.Get(ctx, id); err != nil {
		return err
	}
	if err := s.deps.Store.AppendMessage(ctx, &ticket.Message{
		TicketID:   id,
		AuthorType: ticket.AuthorCustomer,
		AuthorName: req.Author,
		Body:       req.Message,
	}); err != nil {
		return err
	}

	outcome, err := s.deps.Router.HandleCustomerReply(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, DispatchResponse{TicketID: id, Outcome: outcome})
}

// MatchResponse reports the candidate a ticket would get, without acting.
type MatchResponse struct {
	TicketID  string               `json:"ticketId"`
	Matched   bool                 `json:"matched"`
	Candidate *autopatch.Candidate `json:"candidate,omitempty"`
}

func (s *Server) handleMatch(c echo.Context) error {
	ctx := c.Request().Context()
	t, err := s.deps.Store.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	cand := s.deps.Router.Detect(ctx, t)
	return c.JSON(http.StatusOK, MatchResponse{TicketID: t.ID, Matched: cand != nil, Candidate: cand})
}

func (s *Server) handleListApprovals(c echo.Context) error {
	pending := []approval.Request{}
	if s.deps.Pending != nil {
		pending = append(pending, s.deps.Pending.Pending()...)
	}
	return c.JSON(http.StatusOK, pending)
}

// DecisionRequest is the body of POST /api/v1/approvals/:id/decision.
type DecisionRequest struct {
	Approved *bool  `json:"approved"`
	By       string `json:"by"`
}

func (s *Server) handleDecide(c echo.Context) error {
	if s.deps.Decider == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "approvals are not configured")
	}
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Approved == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "approved is required")
	}
	if req.By == "" {
		req.By = "api"
	}

	ctx := c.Request().Context()
	d, err := s.deps.Decider.Decide(ctx, c.Param("id"), *req.Approved, req.By)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// WhitelistRequest is the body of POST /api/v1/whitelist/check.
type WhitelistRequest struct {
	Command string `json:"command"`
}

// WhitelistResponse reports whether a remote command may run.
type WhitelistResponse struct {
	Command string       `json:"command"`
	Allowed bool         `json:"allowed"`
	Reason  string       `json:"reason,omitempty"`
	Rule    *remote.Rule `json:"rule,omitempty"`
}

func (s *Server) handleWhitelistCheck(c echo.Context) error {
	var req WhitelistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Command) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "command is required")
	}
	d := s.deps.Whitelist.Check(req.Command)
	return c.JSON(http.StatusOK, WhitelistResponse{Command: req.Command, Allowed: d.Allowed, Reason: d.Reason, Rule: d.Rule})
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}

// handleScrub redacts secrets so intake systems can clean text before it
// reaches a ticket.
func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}
	result := s.deps.Scrubber.Scrub(req.Content)
	return c.JSON(http.StatusOK, ScrubResponse{Content: result.Scrubbed, FindingsCount: result.TotalFindings})
}
