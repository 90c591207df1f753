package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

func failedAutopatch(retries int) ticket.Metadata {
	m := ticket.Metadata{}
	m.MergeAutopatch(ticket.AutopatchState{Status: ticket.AutopatchFailed, PatternID: "missing-translation", RetryCount: retries})
	return m
}

func TestErrorHandlerReason(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name   string
		ticket ticket.Ticket
		reason string
		ok     bool
	}{
		{
			name:   "module not found",
			ticket: ticket.Ticket{Title: "Error: Cannot find module 'pdfjs-dist'"},
			reason: "Module not found error",
			ok:     true,
		},
		{
			name:   "internal server error",
			ticket: ticket.Ticket{Title: "500", Description: "Internal Server Error beim Speichern"},
			reason: "Internal server error",
			ok:     true,
		},
		{
			name:   "database connection",
			ticket: ticket.Ticket{Title: "Database connection error"},
			reason: "Database connection error",
			ok:     true,
		},
		{
			name:   "other critical keyword",
			ticket: ticket.Ticket{Title: "Service unavailable seit heute"},
			reason: "Unknown critical error",
			ok:     true,
		},
		{
			name:   "repeated errors",
			ticket: ticket.Ticket{Title: "Frage", SourceMetadata: ticket.Metadata{"error_count": float64(3)}},
			reason: "Repeated errors (3 attempts)",
			ok:     true,
		},
		{
			name:   "text reason wins over count",
			ticket: ticket.Ticket{Title: "internal server error", SourceMetadata: ticket.Metadata{"error_count": 4}},
			reason: "Internal server error",
			ok:     true,
		},
		{
			name:   "autopatch failed twice",
			ticket: ticket.Ticket{Title: "Frage", SourceMetadata: failedAutopatch(2)},
			reason: "Autopatch failed multiple times",
			ok:     true,
		},
		{
			name:   "autopatch failed once",
			ticket: ticket.Ticket{Title: "Frage", SourceMetadata: failedAutopatch(1)},
		},
		{
			name:   "below error threshold",
			ticket: ticket.Ticket{Title: "Frage", SourceMetadata: ticket.Metadata{"error_count": 2}},
		},
		{
			name:   "ordinary ticket",
			ticket: ticket.Ticket{Title: "Wie ändere ich mein Logo?"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := h.router.errorHandlerReason(&tt.ticket)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestDispatch_ErrorHandler(t *testing.T) {
	h := newHarness(t, nil)
	tk := h.create(t, &ticket.Ticket{Title: "Internal Server Error beim Speichern"})

	outcome, err := h.router.Dispatch(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeErrorHandler, outcome)

	got := h.reload(t, tk.ID)
	assert.Equal(t, ticket.StatusInvestigating, got.Status)
	assert.Equal(t, AgentErrorHandler, got.AssignedAgent)
	assert.Equal(t, ticket.PriorityNormal, got.Priority)
	assert.Equal(t, 1, got.SourceMetadata.ErrorCount())
	_, stamped := got.SourceMetadata.LastErrorAt()
	assert.True(t, stamped)

	msgs := h.messages(t, tk.ID)
	assert.Equal(t, []string{KindErrorHandlerActive, KindErrorHandler}, kinds(msgs))
	assert.Equal(t, msgErrorHandlerActive, msgs[0].Body)
	assert.Equal(t, "Error-Handler aktiviert: Internal server error (Versuch 1)", msgs[1].Body)
	for _, m := range msgs {
		assert.True(t, m.InternalOnly)
		assert.Equal(t, ticket.AuthorSystem, m.AuthorType)
	}
	assert.Equal(t, []string{EventErrorHandler}, h.publisher.names())
}

func TestDispatch_ErrorHandlerSchedulesRetry(t *testing.T) {
	h := newHarness(t, nil)
	tk := h.create(t, &ticket.Ticket{Title: "Timeout beim Laden", SourceMetadata: failedAutopatch(0)})

	_, err := h.router.Dispatch(context.Background(), tk.ID)
	require.NoError(t, err)

	got := h.reload(t, tk.ID)
	assert.Equal(t, 1, got.SourceMetadata.ErrorCount())
	st, ok := got.SourceMetadata.Autopatch()
	require.True(t, ok)
	assert.Equal(t, ticket.AutopatchFailed, st.Status)
	assert.Equal(t, "missing-translation", st.PatternID, "unrelated autopatch keys survive")
	assert.Equal(t, 1, st.RetryCount)
	assert.NotNil(t, st.LastRetryAt)
}

func TestDispatch_Escalation(t *testing.T) {
	h := newHarness(t, nil)
	meta := failedAutopatch(1)
	meta["error_count"] = 2
	meta["plan"] = "pro"
	tk := h.create(t, &ticket.Ticket{Title: "App crash nach Login", SourceMetadata: meta})

	outcome, err := h.router.Dispatch(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeErrorHandler, outcome)

	got := h.reload(t, tk.ID)
	assert.Equal(t, ticket.PriorityHigh, got.Priority)
	assert.Equal(t, ticket.StatusInvestigating, got.Status)
	assert.Equal(t, AgentEscalation, got.AssignedAgent)
	assert.Equal(t, 3, got.SourceMetadata.ErrorCount())
	assert.Equal(t, "pro", got.SourceMetadata["plan"])

	st, _ := got.SourceMetadata.Autopatch()
	assert.Equal(t, 1, st.RetryCount, "no retry is scheduled once the threshold is reached")

	agents := make([]string, len(got.EscalationPath))
	for i, e := range got.EscalationPath {
		agents[i] = e.Agent
	}
	assert.Equal(t, []string{AgentErrorHandler, AgentEscalation}, agents)

	msgs := h.messages(t, tk.ID)
	assert.Equal(t, []string{KindErrorHandlerActive, KindErrorHandler, KindErrorEscalation}, kinds(msgs))
	assert.Equal(t, "Kritischer Fehler: 3 Versuche fehlgeschlagen. Manuelle Intervention erforderlich.", msgs[2].Body)
	assert.Equal(t, []string{EventErrorHandler, EventEscalated}, h.publisher.names())

	h.logs.AssertLogged(t, zapcore.WarnLevel, "ticket escalated")
	h.logs.AssertField(t, "ticket escalated", "error_count", 3)
	h.logs.AssertField(t, "error handler activated", "ticket_id", tk.ID)
}
