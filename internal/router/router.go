package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/claim"
	"github.com/fyrsmithlabs/autopatchd/internal/executor"
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
	"github.com/fyrsmithlabs/autopatchd/internal/llm"
	"github.com/fyrsmithlabs/autopatchd/internal/secrets"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

const instrumentationName = "github.com/fyrsmithlabs/autopatchd/internal/router"

// ErrBusy is returned when another dispatch holds the ticket.
var ErrBusy = errors.New("ticket is being processed")

// Outcome is the branch a dispatch took.
type Outcome string

const (
	OutcomeAutopatch    Outcome = "autopatch"
	OutcomeErrorHandler Outcome = "error_handler"
	OutcomeAssigned     Outcome = "assigned"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeBusy         Outcome = "busy"
)

// Config tunes the router. Zero values take the defaults below.
type Config struct {
	// Root is the target source tree instructions run against.
	Root string

	PollInterval        time.Duration // default 30s
	PollLimit           int           // default 100
	ClaimTTL            time.Duration // default 2m
	DecisionGrace       time.Duration // default 2m
	DuplicateWindow     time.Duration // default 10m
	CacheSize           int           // default 100; negative disables
	CacheTTL            time.Duration // default 5m
	EscalationThreshold int           // default 3
	RetryThreshold      int           // default 2
	KnowledgeLimit      int           // default 5
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.PollLimit <= 0 {
		c.PollLimit = 100
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = claim.DefaultTTL
	}
	if c.DecisionGrace <= 0 {
		c.DecisionGrace = 2 * time.Minute
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = 10 * time.Minute
	}
	if c.CacheSize == 0 {
		c.CacheSize = 100
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.EscalationThreshold <= 0 {
		c.EscalationThreshold = 3
	}
	if c.RetryThreshold <= 0 {
		c.RetryThreshold = 2
	}
	if c.KnowledgeLimit <= 0 {
		c.KnowledgeLimit = 5
	}
}

// Analyzer derives a candidate from the knowledge corpus.
type Analyzer interface {
	Match(ctx context.Context, t *ticket.Ticket) *autopatch.Candidate
}

// Matcher is the keyword rule catalogue.
type Matcher interface {
	Match(t *ticket.Ticket) *autopatch.Candidate
}

// Executor applies a candidate's instructions.
type Executor interface {
	Execute(ctx context.Context, rootDir string, instructions instruction.List, opts executor.Options) *executor.Result
}

// Approvals is the slice of approval.Service the router uses.
type Approvals interface {
	HasPending(ticketID string) bool
	NotifyResult(ctx context.Context, ticketID string, success bool, message string)
}

// PlanRecorder persists autopatch_plan actions.
type PlanRecorder interface {
	Write(ctx context.Context, action autopatch.Action, pc autopatch.PlanContext) (string, error)
}

// Planner generates an advisory plan for human agents.
type Planner interface {
	GeneratePlan(ctx context.Context, agent llm.Agent, t *ticket.Ticket, docs []knowledge.Document) (*llm.ResolutionPlan, error)
}

// Deps are the router's collaborators. Store, Matcher and Executor are
// required; everything else is optional.
type Deps struct {
	Store     ticket.Store
	Analyzer  Analyzer
	Matcher   Matcher
	Executor  Executor
	Approvals Approvals
	Plans     PlanRecorder
	Scrubber  secrets.Scrubber
	Claims    claim.Guard
	Planner   Planner
	Corpus    knowledge.Corpus
	Publisher Publisher
}

// Router dispatches tickets.
type Router struct {
	cfg    Config
	deps   Deps
	cache  *candidateCache
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a router.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Router, error) {
	if deps.Store == nil {
		return nil, errors.New("router: ticket store is required")
	}
	if deps.Matcher == nil {
		return nil, errors.New("router: pattern matcher is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("router: executor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	if deps.Claims == nil {
		deps.Claims = claim.NewMemoryGuard()
	}
	if deps.Scrubber == nil {
		deps.Scrubber = &secrets.NoopScrubber{}
	}
	return &Router{
		cfg:    cfg,
		deps:   deps,
		cache:  newCandidateCache(cfg.CacheSize, cfg.CacheTTL),
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
	}, nil
}

// Config returns the effective configuration.
func (r *Router) Config() Config { return r.cfg }

// Dispatch loads the ticket and routes it.
func (r *Router) Dispatch(ctx context.Context, ticketID string) (Outcome, error) {
	t, err := r.deps.Store.Get(ctx, ticketID)
	if err != nil {
		return "", fmt.Errorf("loading ticket: %w", err)
	}
	return r.route(ctx, t, "")
}

// HandleCustomerReply re-runs dispatch after a customer message. Autopatch
// detection keeps priority; otherwise the ticket goes back to status new
// with its primary agent.
func (r *Router) HandleCustomerReply(ctx context.Context, ticketID string) (Outcome, error) {
	t, err := r.deps.Store.Get(ctx, ticketID)
	if err != nil {
		return "", fmt.Errorf("loading ticket: %w", err)
	}
	if t.Status.Terminal() {
		r.logger.Debug("reply on closed ticket ignored", zap.String("ticket_id", t.ID))
		DispatchTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}
	r.cache.forget(t)
	t.Status = ticket.StatusNew
	return r.route(ctx, t, primaryAgent(t))
}

// route claims the ticket for the duration of one dispatch.
func (r *Router) route(ctx context.Context, t *ticket.Ticket, forcedAgent string) (Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "router.Dispatch",
		trace.WithAttributes(
			attribute.String("ticket.id", t.ID),
			attribute.String("ticket.status", string(t.Status)),
		))
	defer span.End()

	if t.Status.Terminal() {
		DispatchTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}

	ok, err := r.deps.Claims.Acquire(ctx, t.ID, r.cfg.ClaimTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		DispatchTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("claiming ticket: %w", err)
	}
	if !ok {
		DispatchTotal.WithLabelValues(string(OutcomeBusy)).Inc()
		return OutcomeBusy, ErrBusy
	}
	defer func() {
		if err := r.deps.Claims.Release(context.WithoutCancel(ctx), t.ID); err != nil {
			r.logger.Warn("releasing claim failed", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}()

	outcome, err := r.dispatch(ctx, t, forcedAgent)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		DispatchTotal.WithLabelValues("failed").Inc()
		r.logger.Error("dispatch failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return outcome, err
	}
	DispatchTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

func (r *Router) dispatch(ctx context.Context, t *ticket.Ticket, forcedAgent string) (Outcome, error) {
	if c := r.detect(ctx, t); c != nil {
		if err := r.processCandidate(ctx, t, c); err != nil {
			return OutcomeAutopatch, err
		}
		return OutcomeAutopatch, nil
	}

	if reason, ok := r.errorHandlerReason(t); ok {
		if err := r.handleError(ctx, t, reason); err != nil {
			return OutcomeErrorHandler, err
		}
		return OutcomeErrorHandler, nil
	}

	agent := forcedAgent
	if agent == "" {
		agent = primaryAgent(t)
	}
	if err := r.assign(ctx, t, agent, ticket.StatusNew); err != nil {
		return OutcomeAssigned, err
	}
	r.adviseAgent(ctx, t, agent)
	r.publish(ctx, t.ID, EventAssigned, map[string]any{"agent": agent})
	return OutcomeAssigned, nil
}

// assign moves the ticket to agent and status, recording the hand-off in the
// escalation path when the agent changes.
func (r *Router) assign(ctx context.Context, t *ticket.Ticket, agent string, status ticket.Status) error {
	if err := r.deps.Store.Update(ctx, t.ID, ticket.Update{Status: &status, AssignedAgent: &agent}); err != nil {
		return fmt.Errorf("assigning %s: %w", agent, err)
	}
	if t.AssignedAgent != agent {
		entry := ticket.EscalationEntry{Agent: agent, Status: string(status), Timestamp: r.now().UTC()}
		if err := r.deps.Store.AppendEscalation(ctx, t.ID, entry); err != nil {
			r.logger.Warn("escalation path not updated", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}
	t.Status = status
	t.AssignedAgent = agent
	return nil
}

// post appends a scrubbed message unless an identical one from the same
// author exists inside the duplicate window.
func (r *Router) post(ctx context.Context, m *ticket.Message) error {
	m.Body = r.deps.Scrubber.Scrub(m.Body).Scrubbed
	dup, err := r.deps.Store.HasRecentMessage(ctx, m.TicketID, m.AuthorType, m.Body, r.now().Add(-r.cfg.DuplicateWindow))
	if err != nil {
		r.logger.Warn("duplicate check failed", zap.String("ticket_id", m.TicketID), zap.Error(err))
	}
	if dup {
		r.logger.Debug("duplicate message suppressed",
			zap.String("ticket_id", m.TicketID), zap.String("kind", m.Kind()))
		return nil
	}
	if err := r.deps.Store.AppendMessage(ctx, m); err != nil {
		return fmt.Errorf("posting %s message: %w", m.Kind(), err)
	}
	return nil
}

// note posts an internal system message. Failures are logged only.
func (r *Router) note(ctx context.Context, ticketID, author, body string, meta map[string]any) {
	err := r.post(ctx, &ticket.Message{
		TicketID:     ticketID,
		AuthorType:   ticket.AuthorSystem,
		AuthorName:   author,
		Body:         body,
		InternalOnly: true,
		Metadata:     meta,
	})
	if err != nil {
		r.logger.Warn("internal note not stored", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (r *Router) publish(ctx context.Context, ticketID, event string, payload map[string]any) {
	if r.deps.Publisher == nil {
		return
	}
	if err := r.deps.Publisher.Publish(ctx, ticketID, event, payload); err != nil {
		r.logger.Debug("lifecycle event not published",
			zap.String("ticket_id", ticketID), zap.String("event", event), zap.Error(err))
	}
}
