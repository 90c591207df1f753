package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setLocalFlags(t *testing.T, file, root string) {
	t.Helper()
	prevFile, prevRoot, prevSkip, prevJSON := lcFile, lcRoot, lcSkipChecks, outputJSON
	lcFile, lcRoot, lcSkipChecks, outputJSON = file, root, true, false
	t.Cleanup(func() { lcFile, lcRoot, lcSkipChecks, outputJSON = prevFile, prevRoot, prevSkip, prevJSON })
}

func TestRunMatch(t *testing.T) {
	t.Run("candidate from stdin", func(t *testing.T) {
		setLocalFlags(t, "-", "")
		cmd, out, _ := newTestCmd(`{"id":"tkt_1","title":"Form shows MISSING_MESSAGE: dashboard.title"}`)

		require.NoError(t, runMatch(cmd, nil))
		got := out.String()
		assert.Contains(t, got, "Pattern: missing-translation")
		assert.Contains(t, got, "  - autopatch_plan:")
		assert.Contains(t, got, "  * i18n-add-key")
	})

	t.Run("candidate from file as json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ticket.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"title":"MISSING_MESSAGE: nav.home"}`), 0o600))
		setLocalFlags(t, path, "")
		outputJSON = true
		cmd, out, _ := newTestCmd("")

		require.NoError(t, runMatch(cmd, nil))
		assert.Contains(t, out.String(), `"patternId": "missing-translation"`)
	})

	t.Run("no candidate", func(t *testing.T) {
		setLocalFlags(t, "-", "")
		cmd, out, _ := newTestCmd(`{"title":"How do I change my invoice address?"}`)

		require.NoError(t, runMatch(cmd, nil))
		assert.Equal(t, "No autopatch candidate.\n", out.String())
	})

	t.Run("invalid json", func(t *testing.T) {
		setLocalFlags(t, "-", "")
		cmd, _, _ := newTestCmd(`{not json`)

		err := runMatch(cmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode ticket")
	})
}

func TestRunApply(t *testing.T) {
	t.Run("writes env placeholder", func(t *testing.T) {
		root := t.TempDir()
		setLocalFlags(t, "-", root)
		cmd, out, _ := newTestCmd(`[{"type":"env-add-placeholder","key":"STRIPE_SECRET_KEY","value":"FIXME_STRIPE_SECRET_KEY"}]`)

		require.NoError(t, runApply(cmd, nil))
		assert.Contains(t, out.String(), "checks skipped")
		assert.Contains(t, out.String(), "modified .env.local")

		data, err := os.ReadFile(filepath.Join(root, ".env.local"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "STRIPE_SECRET_KEY=FIXME_STRIPE_SECRET_KEY")
	})

	t.Run("gated command fails without approvals", func(t *testing.T) {
		setLocalFlags(t, "-", t.TempDir())
		cmd, _, _ := newTestCmd(`[{"type":"hetzner-command","command":"pm2 restart all","requiresApproval":true}]`)

		err := runApply(cmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "apply failed")
	})

	t.Run("unknown instruction", func(t *testing.T) {
		setLocalFlags(t, "-", t.TempDir())
		cmd, _, _ := newTestCmd(`[{"type":"format-disk"}]`)

		require.Error(t, runApply(cmd, nil))
	})
}
