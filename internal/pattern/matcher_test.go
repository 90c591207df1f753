package pattern

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

func TestMatcher_MissingTranslation(t *testing.T) {
	m := NewMatcher(nil)
	c := m.Match(&ticket.Ticket{Title: "MISSING_MESSAGE: common.hello"})
	require.NotNil(t, c)
	assert.Equal(t, IDMissingTranslation, c.PatternID)

	require.Len(t, c.Instructions, 1)
	add, ok := c.Instructions[0].(*instruction.I18nAddKey)
	require.True(t, ok)
	assert.Equal(t, "common.hello", add.Key)
	assert.Equal(t, map[string]string{
		"de": "Text hinzufügen",
		"en": "Add text",
		"fr": "Ajouter du texte",
		"sw": "Ongeza maandishi",
	}, add.Translations)

	plan, ok := c.PlanAction()
	require.True(t, ok)
	assert.Equal(t, "i18n-common-hello", plan.Payload.FixName)
}

func TestMatcher_NarrowPDFWorkerWins(t *testing.T) {
	tk := &ticket.Ticket{
		Title:       "PDF hochladen fehler",
		Description: "Error: Cannot find module pdf.worker.mjs",
	}
	text := combinedText(tk)
	require.True(t, reKnowledgeUpload.MatchString(text), "fixture must also satisfy the broad rule")
	assert.Nil(t, matchKnowledgeUpload(tk, text))

	c := NewMatcher(nil).Match(tk)
	require.NotNil(t, c)
	assert.Equal(t, IDPDFWorkerModule, c.PatternID)

	require.Len(t, c.Instructions, 1)
	mod, ok := c.Instructions[0].(*instruction.CodeModify)
	require.True(t, ok)
	assert.Equal(t, "lib/pdf/parsePdf.ts", mod.File)
	require.Len(t, mod.Modifications, len(WorkerImportPatterns))
	for _, m := range mod.Modifications {
		assert.Equal(t, instruction.ModRemove, m.Action)
		assert.Equal(t, instruction.PatternRegex, m.Search.Kind)
	}
}

func TestMatcher_KnowledgeUpload(t *testing.T) {
	c := NewMatcher(nil).Match(&ticket.Ticket{Title: "Wissensquelle Upload fehlgeschlagen"})
	require.NotNil(t, c)
	assert.Equal(t, IDKnowledgeUploadFailed, c.PatternID)
	assert.False(t, c.HasInstructions())
}

func TestMatcher_MissingLocaleFile(t *testing.T) {
	m := NewMatcher(nil)

	c := m.Match(&ticket.Ticket{Description: `Could not load "messages/PT.json"`})
	require.NotNil(t, c)
	assert.Equal(t, IDMissingLocaleFile, c.PatternID)
	clone, ok := c.Instructions[0].(*instruction.CloneLocaleFile)
	require.True(t, ok)
	assert.Equal(t, "pt", clone.Locale)
	assert.Equal(t, BaseLocale, clone.BaseLocale)
	assert.Equal(t, instruction.CloneCopy, clone.Strategy)

	assert.Nil(t, m.Match(&ticket.Ticket{Description: `Could not load "messages/de.json"`}))
}

func TestMatcher_MissingEnvVariable(t *testing.T) {
	tests := []struct {
		name string
		text string
		key  string
	}{
		{"missing required", "Missing required environment variable: STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY"},
		{"process env", "process.env.GROQ_API_KEY is undefined", "GROQ_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMatcher(nil).Match(&ticket.Ticket{Description: tt.text})
			require.NotNil(t, c)
			assert.Equal(t, IDMissingEnvVariable, c.PatternID)
			env, ok := c.Instructions[0].(*instruction.EnvAddPlaceholder)
			require.True(t, ok)
			assert.Equal(t, tt.key, env.Key)
			assert.Equal(t, "FIXME_"+tt.key, env.Value)
			assert.Equal(t, ".env.local", env.Target())
		})
	}
}

func TestMatcher_NetworkMessageFollowsLocale(t *testing.T) {
	m := NewMatcher(nil)

	de := m.Match(&ticket.Ticket{Title: "Failed to fetch"})
	require.NotNil(t, de)
	assert.Contains(t, de.CustomerMessage, "Danke")

	en := m.Match(&ticket.Ticket{Title: "Failed to fetch", SourceMetadata: ticket.Metadata{"locale": "en-US"}})
	require.NotNil(t, en)
	assert.Contains(t, en.CustomerMessage, "Thank you")
}

func TestMatcher_PlanOnlyRules(t *testing.T) {
	tests := map[string]string{
		IDNullGuard:            "TypeError: Cannot read properties of undefined (reading 'id')",
		IDMissingImport:        "ReferenceError: useState is not defined",
		IDRealtimeQuota:        "Realtime quota exceeded",
		IDBotBuilderLoadError:  "Der Bot Builder lädt nicht",
		IDAnalyticsDataMissing: "CSV Export Fehler im Dashboard",
		IDEmbedCodeInvalid:     "Der Embed Code ist falsch",
	}
	m := NewMatcher(nil)
	for id, text := range tests {
		t.Run(id, func(t *testing.T) {
			c := m.Match(&ticket.Ticket{Description: text})
			require.NotNil(t, c)
			assert.Equal(t, id, c.PatternID)
			assert.False(t, c.HasInstructions())
		})
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	m := NewMatcher(nil)
	assert.Nil(t, m.Match(nil))
	assert.Nil(t, m.Match(&ticket.Ticket{}))
	assert.Nil(t, m.Match(&ticket.Ticket{Title: "Frage zur Rechnung"}))
}

func TestCatalogue_Order(t *testing.T) {
	ids := NewMatcher(nil).IDs()
	require.Len(t, ids, 15)
	assert.Equal(t, IDMissingTranslation, ids[0])
	assert.Less(t, slices.Index(ids, IDPDFWorkerModule), slices.Index(ids, IDKnowledgeUploadFailed))
}

func TestCatalogue_PlanShape(t *testing.T) {
	samples := []string{
		"MISSING_MESSAGE: a.very.long.translation.key.that.keeps.going.and.going.forever",
		"ReferenceError: someExtremelyLongIdentifierNameThatIsWayTooLongForAFixName is not defined",
		"Failed to fetch",
		"Cannot find module pdf.worker.mjs",
	}
	m := NewMatcher(nil)
	for _, s := range samples {
		c := m.Match(&ticket.Ticket{Title: s})
		require.NotNil(t, c, s)
		require.Len(t, c.Actions, 1)
		assert.Equal(t, autopatch.ActionAutopatchPlan, c.Actions[0].Type)
		p := c.Actions[0].Payload
		require.NotNil(t, p)
		assert.LessOrEqual(t, len(p.FixName), autopatch.MaxFixNameLength)
		assert.NotEmpty(t, p.Goal)
		assert.NotEmpty(t, p.Steps)
		assert.NotEmpty(t, p.Rollout)
	}
}

func TestMatcher_CustomRules(t *testing.T) {
	hit := Rule{ID: "always", Match: func(_ *ticket.Ticket, _ string) *autopatch.Candidate {
		return &autopatch.Candidate{PatternID: "always"}
	}}
	m := NewMatcherWithRules([]Rule{hit}, nil)
	c := m.Match(&ticket.Ticket{Title: "x"})
	require.NotNil(t, c)
	assert.Equal(t, "always", c.PatternID)
}
