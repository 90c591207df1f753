package autopatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEnvValue(t *testing.T) {
	assert.Equal(t, "sk_live_...", MaskEnvValue("STRIPE_SECRET_KEY", "sk_live_abcdefghijkl"))
	assert.Equal(t, "abc...", MaskEnvValue("TELEGRAM_BOT_TOKEN", "abc"))
	assert.Equal(t, "https://example.supabase.co", MaskEnvValue("NEXT_PUBLIC_SUPABASE_URL", "https://example.supabase.co"))
}

func TestPlanWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w, err := NewPlanWriter(filepath.Join(dir, "autopatches"), nil, nil)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }

	action := NewPlanAction("Add missing translation", PlanPayload{
		FixName:     "missing-translation-common-hello",
		Goal:        "Add common.hello to every locale",
		TargetFiles: []string{"messages/de.json", "messages/en.json"},
		Steps:       []string{"Insert key", "Rebuild"},
		SystemState: &SystemState{
			FileContents: map[string]string{"messages/de.json": strings.Repeat("x", maxFileExcerpt+10)},
			Environment:  map[string]string{"SUPABASE_SERVICE_ROLE_KEY": "eyJhbGciOiJIUzI1NiJ9.payload"},
			Workspace:    &WorkspaceState{Revision: "abc123", Branch: "main", Dirty: []string{"app/page.tsx"}},
		},
	})

	path, err := w.Write(context.Background(), action, PlanContext{
		TicketID:    "T-42",
		Description: "MISSING_MESSAGE: common.hello",
		Locale:      "de",
		Summary:     "Translation missing",
	})
	require.NoError(t, err)
	assert.Equal(t, "20260301T123000Z-t-42-missing-translation-common-hello.md", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)

	assert.Contains(t, content, "# Autopatch Plan: missing-translation-common-hello")
	assert.Contains(t, content, "- Ticket: `T-42`")
	assert.Contains(t, content, "- Locale: de")
	assert.Contains(t, content, "1. Insert key\n2. Rebuild")
	assert.Contains(t, content, "1. "+defaultValidation)
	assert.Contains(t, content, "... (truncated)")
	assert.Contains(t, content, "`SUPABASE_SERVICE_ROLE_KEY`: eyJhbGci...")
	assert.NotContains(t, content, "payload")
	assert.Contains(t, content, "- Revision: `abc123`")
	assert.Contains(t, content, "- Uncommitted: app/page.tsx")
}

func TestPlanWriter_DefaultsAndRejectsOtherActions(t *testing.T) {
	w, err := NewPlanWriter(t.TempDir(), nil, nil)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), Action{Type: ActionManualFollowup}, PlanContext{TicketID: "T-1"})
	assert.Error(t, err)

	path, err := w.Write(context.Background(), Action{Type: ActionAutopatchPlan}, PlanContext{TicketID: "T-1", Summary: "Bot builder load error"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "-t-1-bot-builder-load-error.md"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), defaultGoal)
	assert.Contains(t, string(raw), "- (not specified yet)")
	assert.NotContains(t, string(raw), "## System state")
}

func TestNewPlanWriter_RequiresDir(t *testing.T) {
	_, err := NewPlanWriter("  ", nil, nil)
	assert.Error(t, err)
}
