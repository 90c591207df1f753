package router

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// openStatuses are the statuses the poller picks up.
var openStatuses = []ticket.Status{ticket.StatusNew, ticket.StatusInvestigating}

// humanAgents own a ticket once it is handed off. The poller leaves those
// tickets alone; a customer reply re-runs dispatch.
var humanAgents = []string{AgentSupport, AgentUIDebug, AgentEscalation}

// BeingProcessed reports whether a dispatch for t should wait: a claim is
// live, an approval is pending or was decided within the grace period, or
// the ticket entered investigating within the claim TTL.
func (r *Router) BeingProcessed(ctx context.Context, t *ticket.Ticket) bool {
	if held, err := r.deps.Claims.Held(ctx, t.ID); err != nil {
		r.logger.Warn("claim lookup failed", zap.String("ticket_id", t.ID), zap.Error(err))
	} else if held {
		return true
	}
	if r.deps.Approvals != nil && r.deps.Approvals.HasPending(t.ID) {
		return true
	}

	now := r.now()
	req, err := r.deps.Store.LatestEvent(ctx, t.ID, approval.EventRequest)
	if err != nil {
		r.logger.Warn("approval event lookup failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return false
	}
	if req != nil {
		dec, err := r.deps.Store.LatestEvent(ctx, t.ID, approval.EventDecision)
		if err != nil {
			r.logger.Warn("approval event lookup failed", zap.String("ticket_id", t.ID), zap.Error(err))
			return false
		}
		if dec == nil || dec.CreatedAt.Before(req.CreatedAt) {
			// A request older than the gate timeout can no longer be answered.
			if now.Sub(req.CreatedAt) < approval.DefaultTimeout {
				return true
			}
		} else if now.Sub(dec.CreatedAt) < r.cfg.DecisionGrace {
			return true
		}
	}

	return t.Status == ticket.StatusInvestigating && now.Sub(t.UpdatedAt) < r.cfg.ClaimTTL
}

// Poll dispatches every open ticket that is not being processed and
// returns how many were dispatched. Dispatch errors are logged; the ticket
// is retried on the next cycle.
func (r *Router) Poll(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "router.Poll")
	defer span.End()

	tickets, err := r.deps.Store.List(ctx, ticket.Filter{Statuses: openStatuses, Limit: r.cfg.PollLimit})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("listing open tickets: %w", err)
	}
	PollTickets.Set(float64(len(tickets)))

	dispatched := 0
	for _, t := range tickets {
		if ctx.Err() != nil {
			break
		}
		if slices.Contains(humanAgents, t.AssignedAgent) || r.BeingProcessed(ctx, t) {
			continue
		}
		outcome, err := r.route(ctx, t, "")
		if err != nil {
			if !errors.Is(err, ErrBusy) {
				r.logger.Warn("poll dispatch failed", zap.String("ticket_id", t.ID), zap.Error(err))
			}
			continue
		}
		dispatched++
		r.logger.Debug("ticket dispatched", zap.String("ticket_id", t.ID), zap.String("outcome", string(outcome)))
	}
	span.SetAttributes(
		attribute.Int("tickets.open", len(tickets)),
		attribute.Int("tickets.dispatched", dispatched),
	)
	return dispatched, nil
}

// Poller runs Router.Poll on a cron schedule.
type Poller struct {
	router   *Router
	cron     *cron.Cron
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a poller using the router's poll interval. Overlapping
// cycles are skipped.
func NewPoller(r *Router, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		router:   r,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		interval: r.cfg.PollInterval,
		logger:   logger,
	}
}

// Start polls once, then on every interval. Blocks until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	schedule := "@every " + p.interval.String()
	if _, err := p.cron.AddFunc(schedule, func() { p.cycle(ctx) }); err != nil {
		return fmt.Errorf("poller: invalid schedule %q: %w", schedule, err)
	}

	p.cycle(ctx)
	p.cron.Start()
	p.logger.Info("poller started", zap.Duration("interval", p.interval))

	<-ctx.Done()
	<-p.cron.Stop().Done()
	p.logger.Info("poller stopped")
	return ctx.Err()
}

func (p *Poller) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := p.router.Poll(ctx)
	if err != nil {
		p.logger.Warn("poll cycle failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("poll cycle", zap.Int("dispatched", n))
	}
}
