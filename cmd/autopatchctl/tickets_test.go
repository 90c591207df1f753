package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTicketCreate(t *testing.T) {
	rec := setupServer(t, "", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ticket":{"id":"tkt_1","title":"Login broken","status":"waiting_customer","priority":"high",
			"sourceMetadata":{"autopatch":{"status":"applied","patternId":"missing-translation"}}},"outcome":"autopatch"}`))
	})
	tkTitle, tkMessage, tkPriority, tkDispatch = "Login broken", "Nothing loads", "high", true
	t.Cleanup(func() { tkTitle, tkMessage, tkPriority, tkDispatch = "", "", "normal", false })
	cmd, out, _ := newTestCmd("")

	require.NoError(t, runTicketCreate(cmd, nil))
	assert.Equal(t, "/api/v1/tickets", rec.path)
	assert.Equal(t, "Login broken", rec.body["title"])
	assert.Equal(t, "Nothing loads", rec.body["message"])
	assert.Equal(t, true, rec.body["dispatch"])

	got := out.String()
	assert.Contains(t, got, "Created ticket tkt_1")
	assert.Contains(t, got, "Status:   waiting_customer")
	assert.Contains(t, got, "Autopatch: applied (missing-translation)")
	assert.Contains(t, got, "Outcome:  autopatch")
}

func TestRunTicketGet_EscapesID(t *testing.T) {
	rec := setupServer(t, "", respond(`{"id":"a/b","title":"t","status":"open","priority":"normal"}`))
	cmd, out, _ := newTestCmd("")

	require.NoError(t, runTicketGet(cmd, []string{"a/b"}))
	assert.Equal(t, "/api/v1/tickets/a%2Fb", rec.path)
	assert.Contains(t, out.String(), "ID:       a/b")
	assert.NotContains(t, out.String(), "Agent:")
}

func TestRunTicketMessages(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		rec := setupServer(t, "", respond(`[
			{"authorType":"customer","message":"It broke","internalOnly":false,"createdAt":"2026-01-02T03:04:05Z"},
			{"authorType":"system","message":"Autopatch plan written","internalOnly":true,"createdAt":"2026-01-02T03:05:00Z"}]`))
		cmd, out, _ := newTestCmd("")

		require.NoError(t, runTicketMessages(cmd, []string{"tkt_1"}))
		assert.Equal(t, "/api/v1/tickets/tkt_1/messages", rec.path)
		assert.Contains(t, out.String(), "It broke")
		assert.Contains(t, out.String(), "system (internal)")
	})

	t.Run("empty", func(t *testing.T) {
		setupServer(t, "", respond(`[]`))
		cmd, out, _ := newTestCmd("")

		require.NoError(t, runTicketMessages(cmd, []string{"tkt_1"}))
		assert.Equal(t, "No messages.\n", out.String())
	})
}

func TestRunTicketDispatchAndReply(t *testing.T) {
	rec := setupServer(t, "", respond(`{"ticketId":"tkt_1","outcome":"assigned"}`))

	cmd, out, _ := newTestCmd("")
	require.NoError(t, runTicketDispatch(cmd, []string{"tkt_1"}))
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/v1/tickets/tkt_1/dispatch", rec.path)
	assert.Equal(t, "Ticket tkt_1: assigned\n", out.String())

	tkAuthor = "Dana"
	t.Cleanup(func() { tkAuthor = "" })
	cmd, out, _ = newTestCmd("")
	require.NoError(t, runTicketReply(cmd, []string{"tkt_1", "still broken"}))
	assert.Equal(t, "/api/v1/tickets/tkt_1/replies", rec.path)
	assert.Equal(t, "still broken", rec.body["message"])
	assert.Equal(t, "Dana", rec.body["author"])
	assert.Equal(t, "Ticket tkt_1: assigned\n", out.String())
}

func TestRunTicketMatch(t *testing.T) {
	t.Run("candidate", func(t *testing.T) {
		setupServer(t, "", respond(`{"ticketId":"tkt_1","matched":true,"candidate":{
			"patternId":"pm2-restart","summary":"Restart the app",
			"actions":[{"type":"plan","description":"Write fix plan"}],
			"autoFixInstructions":[{"type":"remote_command","command":"pm2 restart all"}]}}`))
		cmd, out, _ := newTestCmd("")

		require.NoError(t, runTicketMatch(cmd, []string{"tkt_1"}))
		got := out.String()
		assert.Contains(t, got, "Ticket tkt_1 matches pm2-restart")
		assert.Contains(t, got, "Summary: Restart the app")
		assert.Contains(t, got, "  - plan: Write fix plan")
		assert.Contains(t, got, "  * remote_command")
	})

	t.Run("no candidate", func(t *testing.T) {
		setupServer(t, "", respond(`{"ticketId":"tkt_2","matched":false}`))
		cmd, out, _ := newTestCmd("")

		require.NoError(t, runTicketMatch(cmd, []string{"tkt_2"}))
		assert.Equal(t, "Ticket tkt_2: no autopatch candidate\n", out.String())
	})
}
