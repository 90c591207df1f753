package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// criticalPatterns are lowercase fragments that route a ticket to the
// error handler when no autopatch matched.
var criticalPatterns = []string{
	"err_module_not_found",
	"cannot find module",
	"module not found",
	"internal server error",
	"database connection error",
	"service unavailable",
	"timeout",
	"crash",
	"fatal error",
	"critical error",
	"system error",
}

// errorHandlerReason reports whether the ticket belongs to the error handler
// and why. Repeated errors are checked before the ticket text.
func (r *Router) errorHandlerReason(t *ticket.Ticket) (string, bool) {
	text := strings.ToLower(t.Title + " " + t.Description)
	errorCount := t.SourceMetadata.ErrorCount()
	st, hasAutopatch := t.SourceMetadata.Autopatch()
	failed := hasAutopatch && st.Status == ticket.AutopatchFailed

	triggered := errorCount >= r.cfg.EscalationThreshold ||
		(failed && st.RetryCount >= r.cfg.RetryThreshold) ||
		containsAny(text, criticalPatterns...)
	if !triggered {
		return "", false
	}

	switch {
	case containsAny(text, "err_module_not_found", "cannot find module"):
		return "Module not found error", true
	case strings.Contains(text, "internal server error"):
		return "Internal server error", true
	case strings.Contains(text, "database connection error"):
		return "Database connection error", true
	case errorCount >= r.cfg.EscalationThreshold:
		return fmt.Sprintf("Repeated errors (%d attempts)", errorCount), true
	case failed:
		return "Autopatch failed multiple times", true
	default:
		return "Unknown critical error", true
	}
}

// handleError assigns the error handler and runs recovery.
func (r *Router) handleError(ctx context.Context, t *ticket.Ticket, reason string) error {
	ctx, span := r.tracer.Start(ctx, "router.handleError")
	defer span.End()

	if err := r.assign(ctx, t, AgentErrorHandler, ticket.StatusInvestigating); err != nil {
		return err
	}
	r.note(ctx, t.ID, authorErrorHandler, msgErrorHandlerActive, map[string]any{
		"kind":   KindErrorHandlerActive,
		"reason": reason,
	})
	r.logger.Info("error handler activated", zap.String("ticket_id", t.ID), zap.String("reason", reason))
	r.publish(ctx, t.ID, EventErrorHandler, map[string]any{"reason": reason})
	return r.recoverTicket(ctx, t, reason)
}

// recoverTicket counts the error, schedules an autopatch retry while below
// the threshold and escalates once it is reached.
func (r *Router) recoverTicket(ctx context.Context, t *ticket.Ticket, reason string) error {
	now := r.now().UTC()
	meta := t.SourceMetadata.Clone()
	errorCount := meta.RecordError(now)

	if st, ok := meta.Autopatch(); ok && st.Status == ticket.AutopatchFailed && errorCount < r.cfg.EscalationThreshold {
		meta.MergeAutopatch(ticket.AutopatchState{RetryCount: st.RetryCount + 1, LastRetryAt: &now})
		r.logger.Info("autopatch retry scheduled",
			zap.String("ticket_id", t.ID), zap.Int("retry_count", st.RetryCount+1))
	}

	if err := r.deps.Store.Update(ctx, t.ID, ticket.Update{SourceMetadata: meta}); err != nil {
		return fmt.Errorf("recording error count: %w", err)
	}
	t.SourceMetadata = meta

	r.note(ctx, t.ID, authorErrorHandler,
		fmt.Sprintf("Error-Handler aktiviert: %s (Versuch %d)", reason, errorCount),
		map[string]any{
			"kind":       KindErrorHandler,
			"reason":     reason,
			"errorCount": errorCount,
		})

	if errorCount < r.cfg.EscalationThreshold {
		return nil
	}
	return r.escalate(ctx, t, errorCount)
}

// escalate hands the ticket to a human. No automated remedy follows.
func (r *Router) escalate(ctx context.Context, t *ticket.Ticket, errorCount int) error {
	r.note(ctx, t.ID, authorErrorHandler,
		fmt.Sprintf("Kritischer Fehler: %d Versuche fehlgeschlagen. Manuelle Intervention erforderlich.", errorCount),
		map[string]any{
			"kind":       KindErrorEscalation,
			"errorCount": errorCount,
		})

	high := ticket.PriorityHigh
	if err := r.deps.Store.Update(ctx, t.ID, ticket.Update{Priority: &high}); err != nil {
		return fmt.Errorf("raising priority: %w", err)
	}
	t.Priority = high
	if err := r.assign(ctx, t, AgentEscalation, ticket.StatusInvestigating); err != nil {
		return err
	}

	EscalationsTotal.Inc()
	r.logger.Warn("ticket escalated", zap.String("ticket_id", t.ID), zap.Int("error_count", errorCount))
	r.publish(ctx, t.ID, EventEscalated, map[string]any{"errorCount": errorCount})
	return nil
}
