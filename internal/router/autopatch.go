package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/executor"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// Detect runs the analyzer, then the rule catalogue, without side effects.
func (r *Router) Detect(ctx context.Context, t *ticket.Ticket) *autopatch.Candidate {
	if cand, ok := r.cache.get(t); ok {
		return cand
	}
	var cand *autopatch.Candidate
	if r.deps.Analyzer != nil {
		cand = r.deps.Analyzer.Match(ctx, t)
	}
	if cand == nil {
		cand = r.deps.Matcher.Match(t)
	}
	r.cache.put(t, cand)
	return cand
}

// detect is Detect plus the guard against re-running a pattern that was
// already applied to this ticket.
func (r *Router) detect(ctx context.Context, t *ticket.Ticket) *autopatch.Candidate {
	cand := r.Detect(ctx, t)
	if cand == nil {
		return nil
	}
	if st, ok := t.SourceMetadata.Autopatch(); ok && st.Status == ticket.AutopatchApplied && st.PatternID == cand.PatternID {
		r.logger.Debug("autopatch already applied",
			zap.String("ticket_id", t.ID), zap.String("pattern_id", cand.PatternID))
		return nil
	}
	return cand
}

// processCandidate runs one autopatch attempt and leaves the ticket in
// waiting_customer.
func (r *Router) processCandidate(ctx context.Context, t *ticket.Ticket, c *autopatch.Candidate) error {
	ctx, span := r.tracer.Start(ctx, "router.processCandidate")
	defer span.End()

	logger := r.logger.With(zap.String("ticket_id", t.ID), zap.String("pattern_id", c.PatternID))

	// The status change comes first: it is what a concurrent dispatch sees.
	if err := r.assign(ctx, t, AgentAutopatch, ticket.StatusInvestigating); err != nil {
		return err
	}
	r.publish(ctx, t.ID, EventAutopatchStarted, map[string]any{"patternId": c.PatternID})

	err := r.post(ctx, &ticket.Message{
		TicketID:   t.ID,
		AuthorType: ticket.AuthorSupport,
		AuthorName: authorSupportTeam,
		Body:       acknowledgement(t, c),
		Metadata: map[string]any{
			"kind":      KindAutopatchInitiated,
			"summary":   c.Summary,
			"patternId": c.PatternID,
		},
	})
	if err != nil {
		logger.Warn("acknowledgement not posted", zap.Error(err))
	}

	r.writePlans(ctx, t, c)

	state := ticket.AutopatchState{Status: ticket.AutopatchPlanned, PatternID: c.PatternID}
	if c.HasInstructions() {
		res := r.deps.Executor.Execute(ctx, r.cfg.Root, c.Instructions, executor.Options{TicketID: t.ID})
		state.AutoFixMessage = r.deps.Scrubber.Scrub(resultMessage(res)).Scrubbed
		if res.Success {
			state.Status = ticket.AutopatchApplied
			r.reportSuccess(ctx, t, c, res)
		} else {
			state.LastError = res.ErrorMessage()
			if state.LastError == "" {
				state.LastError = res.Message
			}
			state.LastError = r.deps.Scrubber.Scrub(state.LastError).Scrubbed
			r.note(ctx, t.ID, authorAutomation, msgAutofixFailed+res.Message, map[string]any{
				"kind":       KindAutofixFailed,
				"patternId":  c.PatternID,
				"rolledBack": res.RolledBack,
			})
		}
		if r.deps.Approvals != nil {
			r.deps.Approvals.NotifyResult(ctx, t.ID, res.Success, state.AutoFixMessage)
		}
		logger.Info("autopatch executed",
			zap.Bool("success", res.Success),
			zap.Strings("modified_files", res.ModifiedFiles),
			zap.Int("remote_ops", res.RemoteOps),
			zap.Bool("rolled_back", res.RolledBack))
	} else {
		r.note(ctx, t.ID, authorAutomation, msgNoAutofix, map[string]any{
			"kind":      KindNoAutofix,
			"patternId": c.PatternID,
		})
	}
	AutopatchTotal.WithLabelValues(string(state.Status)).Inc()

	now := r.now().UTC()
	state.UpdatedAt = &now
	meta := t.SourceMetadata.Clone()
	meta.MergeAutopatch(state)
	if err := r.deps.Store.Update(ctx, t.ID, ticket.Update{SourceMetadata: meta}); err != nil {
		return fmt.Errorf("recording autopatch state: %w", err)
	}
	t.SourceMetadata = meta

	if err := r.assign(ctx, t, AgentAutopatch, ticket.StatusWaitingCustomer); err != nil {
		return err
	}
	r.publish(ctx, t.ID, EventAutopatchFinished, map[string]any{
		"patternId": c.PatternID,
		"status":    string(state.Status),
	})
	return nil
}

func (r *Router) reportSuccess(ctx context.Context, t *ticket.Ticket, c *autopatch.Candidate, res *executor.Result) {
	err := r.post(ctx, &ticket.Message{
		TicketID:   t.ID,
		AuthorType: ticket.AuthorSupport,
		AuthorName: authorSupportTeam,
		Body:       retestRequest(t, len(res.Warnings) > 0),
		Metadata: map[string]any{
			"kind":      KindAutofixSuccess,
			"patternId": c.PatternID,
		},
	})
	if err != nil {
		r.logger.Warn("retest request not posted", zap.String("ticket_id", t.ID), zap.Error(err))
	}
	if len(res.Warnings) > 0 {
		r.note(ctx, t.ID, authorAutomation, warningNote(res.Warnings), map[string]any{
			"kind":      KindAutofixWarning,
			"patternId": c.PatternID,
		})
	}
}

// writePlans persists every autopatch_plan action. Artifact failures never
// stop the attempt.
func (r *Router) writePlans(ctx context.Context, t *ticket.Ticket, c *autopatch.Candidate) {
	if r.deps.Plans == nil {
		return
	}
	pc := autopatch.PlanContext{
		TicketID:    t.ID,
		Title:       t.Title,
		Description: t.Description,
		Locale:      t.Locale(),
		Summary:     c.Summary,
	}
	for _, a := range c.Actions {
		if a.Type != autopatch.ActionAutopatchPlan {
			continue
		}
		path, err := r.deps.Plans.Write(ctx, a, pc)
		if err != nil {
			r.logger.Warn("plan artifact not written", zap.String("ticket_id", t.ID), zap.Error(err))
			continue
		}
		r.logger.Debug("plan artifact written", zap.String("ticket_id", t.ID), zap.String("path", path))
	}
}

func resultMessage(res *executor.Result) string {
	if len(res.Warnings) == 0 {
		return res.Message
	}
	return fmt.Sprintf("%s (%s)", res.Message, strings.Join(res.Warnings, "; "))
}
