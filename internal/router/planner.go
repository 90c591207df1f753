package router

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
	"github.com/fyrsmithlabs/autopatchd/internal/llm"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

var agents = map[string]llm.Agent{
	AgentSupport: {
		ID:          AgentSupport,
		Label:       "Support Agent",
		Description: "Beantwortet Kundenanfragen und löst Konfigurationsprobleme.",
		Goals:       []string{"Problem verstehen", "Lösungsschritte vorschlagen", "Kunden informieren"},
		AllowedActions: []autopatch.ActionType{
			autopatch.ActionManualFollowup,
			autopatch.ActionSupabaseQuery,
		},
	},
	AgentUIDebug: {
		ID:          AgentUIDebug,
		Label:       "UI Debug Agent",
		Description: "Analysiert Darstellungs- und Bedienprobleme im Frontend.",
		Goals:       []string{"Fehlerhafte Komponente finden", "UX-Anpassung vorschlagen"},
		AllowedActions: []autopatch.ActionType{
			autopatch.ActionUXUpdate,
			autopatch.ActionManualFollowup,
		},
	},
	AgentEscalation: {
		ID:          AgentEscalation,
		Label:       "Escalation Agent",
		Description: "Übernimmt kritische Tickets, die manuelle Eingriffe erfordern.",
		Goals:       []string{"Ursache eingrenzen", "Serverseitige Schritte planen"},
		AllowedActions: []autopatch.ActionType{
			autopatch.ActionHetznerCommand,
			autopatch.ActionSupabaseQuery,
			autopatch.ActionManualFollowup,
		},
	},
}

// adviseAgent attaches a generated plan for the assigned human agent as an
// internal note. It is a no-op without a planner.
func (r *Router) adviseAgent(ctx context.Context, t *ticket.Ticket, agentID string) {
	if r.deps.Planner == nil {
		return
	}
	agent, ok := agents[agentID]
	if !ok {
		return
	}
	ctx, span := r.tracer.Start(ctx, "router.adviseAgent")
	defer span.End()

	var docs []knowledge.Document
	if r.deps.Corpus != nil {
		var err error
		docs, err = r.deps.Corpus.Query(ctx, t.Text(), r.cfg.KnowledgeLimit)
		if err != nil {
			r.logger.Debug("knowledge lookup failed", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}

	plan, err := r.deps.Planner.GeneratePlan(ctx, agent, t, docs)
	if err != nil {
		r.logger.Warn("plan generation failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return
	}
	r.note(ctx, t.ID, authorSystem, renderPlanNote(plan), map[string]any{
		"kind":    KindAgentPlan,
		"agent":   agentID,
		"status":  string(plan.Status),
		"actions": len(plan.Actions),
	})
}

func renderPlanNote(plan *llm.ResolutionPlan) string {
	var b strings.Builder
	b.WriteString("Vorschlag: ")
	b.WriteString(plan.Summary)
	for _, a := range plan.Actions {
		b.WriteString("\n- [")
		b.WriteString(string(a.Type))
		b.WriteString("] ")
		b.WriteString(a.Description)
	}
	return b.String()
}
