package router

import (
	"strings"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// Agents the router assigns.
const (
	AgentAutopatch    = "autopatch-architect-agent"
	AgentErrorHandler = "error-handler-agent"
	AgentEscalation   = "escalation-agent"
	AgentUIDebug      = "ui-debug-agent"
	AgentSupport      = "support-agent"
)

// Author names on router messages.
const (
	authorSupportTeam  = "Support Team"
	authorAutomation   = "Autopatch Automation"
	authorErrorHandler = "Error Handler Agent"
	authorSystem       = "MCP System"
)

// Message kinds stored in message metadata.
const (
	KindAutopatchInitiated = "autopatch_initiated"
	KindAutofixSuccess     = "autopatch_autofix_success_verified"
	KindAutofixWarning     = "autopatch_autofix_warning"
	KindAutofixFailed      = "autopatch_autofix_failed_internal"
	KindNoAutofix          = "autopatch_no_autofix"
	KindErrorHandlerActive = "error_handler_activated"
	KindErrorHandler       = "error_handler"
	KindErrorEscalation    = "error_escalation"
	KindAgentPlan          = "agent_plan"
)

const (
	msgErrorHandlerActive = "Kritischer Fehler erkannt. Fehler-Handling wird durchgeführt..."
	msgNoAutofix          = "Kein automatischer Fix verfügbar. Bitte den Plan prüfen und manuell umsetzen."
	msgAutofixFailed      = "Automatischer Fix konnte nicht vollständig durchgeführt werden: "
	msgStillOpenSuffix    = " Falls das Problem weiterhin besteht, melde dich gerne."
)

// category is the customer-facing problem family a ticket belongs to.
type category int

const (
	categoryGeneric category = iota
	categoryPDF
	categoryPayment
	categoryTranslation
)

func categorize(t *ticket.Ticket) category {
	text := strings.ToLower(t.Text())
	switch {
	case containsAny(text, "pdf", "upload", "wissensquelle"):
		return categoryPDF
	case containsAny(text, "zahlung", "payment", "checkout", "apple pay"):
		return categoryPayment
	case containsAny(text, "übersetzung", "translation", "missing_message"):
		return categoryTranslation
	default:
		return categoryGeneric
	}
}

// acknowledgement is posted when remediation starts. The candidate's own
// message wins; the category text covers candidates without one.
func acknowledgement(t *ticket.Ticket, c *autopatch.Candidate) string {
	if msg := strings.TrimSpace(c.CustomerMessage); msg != "" {
		return msg
	}
	switch categorize(t) {
	case categoryPDF:
		return "Ich habe das PDF-Upload-Problem erkannt und behebe es jetzt automatisch. Das dauert nur einen Moment..."
	case categoryPayment:
		return "Ich habe das Zahlungsproblem erkannt und behebe es jetzt automatisch. Das dauert nur einen Moment..."
	case categoryTranslation:
		return "Ich habe den fehlenden Text erkannt und ergänze ihn jetzt automatisch. Das dauert nur einen Moment..."
	default:
		return "Ich habe das Problem erkannt und behebe es jetzt automatisch. Das dauert nur einen Moment..."
	}
}

// retestRequest asks the customer to verify a successful fix.
func retestRequest(t *ticket.Ticket, hasWarnings bool) string {
	var msg string
	switch categorize(t) {
	case categoryPDF:
		msg = "Das PDF-Upload-Problem wurde behoben. Bitte lade die Seite einmal neu (Strg/Cmd + Shift + R) und versuche es erneut."
	case categoryPayment:
		msg = "Das Zahlungsproblem wurde behoben. Bitte lade die Seite einmal neu und versuche es erneut."
	case categoryTranslation:
		return "Der fehlende Text wurde ergänzt. Bitte lade die Seite einmal neu und prüfe, ob alles korrekt angezeigt wird."
	default:
		msg = "Das Problem wurde behoben. Bitte lade die Seite einmal neu (Strg/Cmd + Shift + R) und versuche es erneut."
	}
	if hasWarnings {
		msg += msgStillOpenSuffix
	}
	return msg
}

func warningNote(warnings []string) string {
	var b strings.Builder
	b.WriteString("Autofix Hinweise:")
	for _, w := range warnings {
		b.WriteString("\n- ")
		b.WriteString(w)
	}
	return b.String()
}

// primaryAgent picks the human agent for a ticket without automation.
func primaryAgent(t *ticket.Ticket) string {
	cat := strings.ToLower(t.Category)
	text := strings.ToLower(t.Title + " " + t.Description)
	switch {
	case strings.Contains(cat, "ui") || containsWord(text, "ui"):
		return AgentUIDebug
	case strings.Contains(cat, "escalation"):
		return AgentEscalation
	default:
		return AgentSupport
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// containsWord matches w as a whole word so "ui" does not fire on "build".
func containsWord(s, w string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if f == w {
			return true
		}
	}
	return false
}
