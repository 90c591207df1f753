package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunApprovalList(t *testing.T) {
	t.Run("rows", func(t *testing.T) {
		rec := setupServer(t, "tok", respond(`[
			{"id":"req-1","ticketId":"tkt_1","instructionType":"remote_command","command":"pm2 restart all","requestedAt":"2026-01-02T03:04:05Z"},
			{"id":"req-2","ticketId":"tkt_2","instructionType":"sql","sql":"UPDATE users SET plan = 'pro'","requestedAt":"2026-01-02T03:04:06Z"}]`))
		cmd, out, _ := newTestCmd("")

		require.NoError(t, runApprovalList(cmd, nil))
		assert.Equal(t, "/api/v1/approvals", rec.path)
		assert.Equal(t, "Bearer tok", rec.auth)
		got := out.String()
		assert.Contains(t, got, "req-1")
		assert.Contains(t, got, "pm2 restart all")
		assert.Contains(t, got, "UPDATE users SET plan = 'pro'")
	})

	t.Run("empty", func(t *testing.T) {
		setupServer(t, "", respond(`[]`))
		cmd, out, _ := newTestCmd("")

		require.NoError(t, runApprovalList(cmd, nil))
		assert.Equal(t, "No pending approvals.\n", out.String())
	})
}

func TestRunDecide(t *testing.T) {
	rec := setupServer(t, "", respond(`{"requestId":"req-1","ticketId":"tkt_1","approved":false,"by":"oncall"}`))
	apBy = "oncall"
	t.Cleanup(func() { apBy = "" })
	cmd, out, _ := newTestCmd("")

	require.NoError(t, runDecide(cmd, "req-1", false))
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/v1/approvals/req-1/decision", rec.path)
	assert.Equal(t, false, rec.body["approved"])
	assert.Equal(t, "oncall", rec.body["by"])
	assert.Equal(t, "Request req-1 denied by oncall (ticket tkt_1)\n", out.String())
}

func TestRunDecide_DefaultsOperator(t *testing.T) {
	rec := setupServer(t, "", respond(`{"requestId":"req-1","ticketId":"tkt_1","approved":true,"by":"x"}`))
	cmd, _, _ := newTestCmd("")

	require.NoError(t, runDecide(cmd, "req-1", true))
	assert.NotEmpty(t, rec.body["by"])
	assert.Equal(t, true, rec.body["approved"])
}

func TestRunDecide_NotFound(t *testing.T) {
	setupServer(t, "", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"approval request not found"}`))
	})
	cmd, _, _ := newTestCmd("")

	err := runDecide(cmd, "missing", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approval request not found")
}
