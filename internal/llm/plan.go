package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

const (
	maxSnippetLength  = 800
	maxMetadataLength = 800
)

// PlanStatus is the ticket status a plan proposes.
type PlanStatus string

const (
	PlanResolved        PlanStatus = "resolved"
	PlanWaitingCustomer PlanStatus = "waiting_customer"
)

// Agent describes the support role a plan is written for.
type Agent struct {
	ID             string
	Label          string
	Description    string
	Goals          []string
	AllowedActions []autopatch.ActionType
}

// PlanAction is one step proposed by the model.
type PlanAction struct {
	Type        autopatch.ActionType `json:"type"`
	Description string               `json:"description"`
	Payload     map[string]any       `json:"payload,omitempty"`
}

// ResolutionPlan is the model's proposal for a ticket.
type ResolutionPlan struct {
	Status  PlanStatus   `json:"status"`
	Summary string       `json:"summary"`
	Actions []PlanAction `json:"actions"`
}

const (
	fallbackSummary = "Ticket wurde erfasst. Die automatische Analyse war nicht erfolgreich. " +
		"Ein Support-Mitarbeiter übernimmt die weitere Bearbeitung."
	defaultSummary = "Analyse abgeschlossen. Ein Mensch prüft den nächsten Schritt."
)

// FallbackPlan is the plan used when no model answer is available.
func FallbackPlan(reason string) *ResolutionPlan {
	return &ResolutionPlan{
		Status:  PlanWaitingCustomer,
		Summary: fallbackSummary,
		Actions: []PlanAction{{
			Type:        autopatch.ActionManualFollowup,
			Description: "Manual review required: " + reason,
		}},
	}
}

// GeneratePlan asks the model for a resolution plan. On failure the error is
// returned together with FallbackPlan, so callers always have a plan.
func (c *Client) GeneratePlan(ctx context.Context, agent Agent, t *ticket.Ticket, docs []knowledge.Document) (*ResolutionPlan, error) {
	ctx, span := c.tracer.Start(ctx, "llm.GeneratePlan",
		trace.WithAttributes(
			attribute.String("agent.id", agent.ID),
			attribute.String("ticket.id", t.ID),
			attribute.Int("knowledge.count", len(docs)),
		))
	defer span.End()

	start := time.Now()
	raw, err := c.complete(ctx, planSystemPrompt, buildPlanPrompt(agent, t, docs))
	RequestDuration.WithLabelValues("plan").Observe(time.Since(start).Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues("plan", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("plan generation failed",
			zap.String("ticket_id", t.ID), zap.String("agent", agent.ID), zap.Error(err))
		return FallbackPlan("plan generation failed"), err
	}

	plan, err := parsePlan(raw)
	if err != nil {
		RequestsTotal.WithLabelValues("plan", "invalid").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("plan response unusable",
			zap.String("ticket_id", t.ID), zap.Error(err))
		return FallbackPlan("plan response unusable"), err
	}

	RequestsTotal.WithLabelValues("plan", "ok").Inc()
	c.logger.Info("plan generated",
		zap.String("ticket_id", t.ID),
		zap.String("agent", agent.ID),
		zap.String("status", string(plan.Status)),
		zap.Int("actions", len(plan.Actions)),
		zap.Duration("duration", time.Since(start)))
	return plan, nil
}

func parsePlan(raw string) (*ResolutionPlan, error) {
	obj, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var plan ResolutionPlan
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	if plan.Status != PlanResolved {
		plan.Status = PlanWaitingCustomer
	}
	if strings.TrimSpace(plan.Summary) == "" {
		plan.Summary = defaultSummary
	}
	if plan.Actions == nil {
		plan.Actions = []PlanAction{}
	}
	return &plan, nil
}

const planSystemPrompt = "You are a support engineer for a WhatsApp bot builder SaaS. " +
	"Answer only with the requested JSON object."

func buildPlanPrompt(agent Agent, t *ticket.Ticket, docs []knowledge.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Du bist %s.\n%s\n\n", agent.Label, agent.Description)

	b.WriteString("Arbeitsregeln:\n")
	b.WriteString("- Nutze zuerst die interne Wissensbasis (Quellen unten) und gib Quellen an.\n")
	b.WriteString("- Frage nur nach, wenn konkrete Daten fehlen.\n")
	b.WriteString("- Technische Details gehören in \"actions\", nicht in die Kundenantwort.\n\n")

	if len(agent.Goals) > 0 {
		b.WriteString("Ziele:\n")
		for i, g := range agent.Goals {
			fmt.Fprintf(&b, "%d. %s\n", i+1, g)
		}
		b.WriteString("\n")
	}
	if len(agent.AllowedActions) > 0 {
		b.WriteString("Erlaubte Aktionen:\n")
		for _, a := range agent.AllowedActions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		b.WriteString("\n")
	}

	category := t.Category
	if category == "" {
		category = "unbekannt"
	}
	b.WriteString("Ticket-Kontext:\n")
	fmt.Fprintf(&b, "- ID: %s\n- Titel: %s\n- Kategorie: %s\n- Priorität: %s\n- Beschreibung: %s\n",
		t.ID, t.Title, category, t.Priority, t.Description)
	fmt.Fprintf(&b, "- Metadaten: %s\n\n", metadataSummary(t.SourceMetadata))

	b.WriteString("Relevante Wissensbasis:\n")
	if len(docs) == 0 {
		b.WriteString("- Keine zusätzlichen Quellen gefunden -\n")
	}
	for i, d := range docs {
		fmt.Fprintf(&b, "### Quelle %d: %s\nPfad: %s\n---\n%s\n\n", i+1, d.Title, d.ID, truncate(d.Content, maxSnippetLength))
	}

	b.WriteString(`
Antworte ausschließlich in diesem JSON-Format:
{
  "status": "resolved" | "waiting_customer",
  "summary": "Deutschsprachige, freundliche Antwort",
  "actions": [{"type": "supabase_query" | "hetzner_command" | "ux_update" | "manual_followup", "description": "...", "payload": {}}]
}
`)
	return b.String()
}

func metadataSummary(m ticket.Metadata) string {
	if len(m) == 0 {
		return "Keine zusätzlichen Metadaten übermittelt."
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "Keine zusätzlichen Metadaten übermittelt."
	}
	s := string(data)
	if len(s) > maxMetadataLength {
		return truncate(s, maxMetadataLength) + "… (gekürzt)"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
