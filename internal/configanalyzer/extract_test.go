package configanalyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
)

func corpusDocs() []knowledge.Document {
	return []knowledge.Document{
		{ID: "env", Title: "Environment", Content: "# Environment\n" +
			"SUPABASE_SERVICE_ROLE_KEY is configured in .env.local\n" +
			"Service role key used by server-side API routes.\n"},
		{ID: "upload", Title: "Knowledge upload", Content: "# Knowledge upload\n" +
			"The upload endpoint /api/knowledge/upload accepts PDF files.\n" +
			"Parsing happens in lib/pdf/parsePdf.ts using pdf-parse.\n"},
		{ID: "deploy", Title: "Deployment", Content: "# Deployment\n" +
			"The bot runs under pm2 as whatsapp-bot-builder behind caddy.\n"},
	}
}

func TestExtract(t *testing.T) {
	cfgs := Extract(corpusDocs())
	require.Len(t, cfgs, 4)

	env := cfgs[0]
	assert.Equal(t, TypeEnvVar, env.Type)
	assert.Equal(t, "SUPABASE_SERVICE_ROLE_KEY", env.Name)
	assert.Equal(t, "Service role key used by server-side API routes.", env.Description)
	assert.Equal(t, ".env.local", env.Location)
	assert.Contains(t, env.PotentialIssues, "fehlt")

	ep := cfgs[1]
	assert.Equal(t, TypeAPIEndpoint, ep.Type)
	assert.Equal(t, "/api/knowledge/upload", ep.Name)
	assert.Equal(t, "app/api/knowledge/upload/route.ts", ep.Location)
	assert.Equal(t, "The upload endpoint /api/knowledge/upload accepts PDF files.", ep.Description)

	pdf := cfgs[2]
	assert.Equal(t, TypeFrontendConfig, pdf.Type)
	assert.Equal(t, "lib/pdf/parsePdf.ts", pdf.Name)
	assert.Equal(t, "lib/pdf/parsePdf.ts", pdf.Location)
	assert.Contains(t, pdf.PotentialIssues, "module not found")

	dep := cfgs[3]
	assert.Equal(t, TypeDeploymentConfig, dep.Type)
	assert.Equal(t, deploymentName, dep.Name)
	assert.Equal(t, ecosystemFile, dep.Location)
}

func TestExtract_DeduplicatesAcrossDocuments(t *testing.T) {
	docs := append(corpusDocs(), corpusDocs()...)
	assert.Len(t, Extract(docs), 4)
}

func TestExtract_Heuristics(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantType ConfigType
		wantName string
		wantLoc  string
	}{
		{
			name:     "database mention",
			content:  "Enable Row Level Security on the bots table.",
			wantType: TypeDatabaseSetting,
			wantName: databaseName,
			wantLoc:  migrationsDir,
		},
		{
			name:     "frontend file",
			content:  "The shell is app/dashboard/layout.tsx with components/Header.tsx inside.",
			wantType: TypeFrontendConfig,
			wantName: "app/dashboard/layout.tsx",
			wantLoc:  "app/dashboard/layout.tsx",
		},
		{
			name:     "env var with explicit config file",
			content:  "NEXT_PUBLIC_APP_URL is read in config/site.ts",
			wantType: TypeEnvVar,
			wantName: "NEXT_PUBLIC_APP_URL",
			wantLoc:  "config/site.ts",
		},
		{
			name:     "pdf fallback files",
			content:  "Large PDF files are split into chunks before embedding.",
			wantType: TypeFrontendConfig,
			wantName: "lib/pdf/parsePdf.ts",
			wantLoc:  "lib/pdf/parsePdf.ts",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgs := Extract([]knowledge.Document{{ID: "d", Content: tt.content}})
			var found *Configuration
			for i := range cfgs {
				if cfgs[i].Type == tt.wantType && cfgs[i].Name == tt.wantName {
					found = &cfgs[i]
				}
			}
			require.NotNil(t, found, "configurations: %+v", cfgs)
			assert.Equal(t, tt.wantLoc, found.Location)
		})
	}
}

func TestExtract_FrontendSkipsNonConfigFiles(t *testing.T) {
	cfgs := Extract([]knowledge.Document{{ID: "d",
		Content: "The shell is app/dashboard/layout.tsx with components/Header.tsx inside."}})
	for _, c := range cfgs {
		assert.NotEqual(t, "components/Header.tsx", c.Name)
	}
}

func TestExtract_EmptyDocuments(t *testing.T) {
	assert.Empty(t, Extract(nil))
	assert.Empty(t, Extract([]knowledge.Document{{ID: "blank", Content: "  \n"}}))
}
