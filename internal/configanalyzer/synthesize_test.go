package configanalyzer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/pattern"
)

func commands(t *testing.T, ins []instruction.Instruction) []string {
	t.Helper()
	var out []string
	for _, in := range ins {
		hc, ok := in.(*instruction.HetznerCommand)
		require.True(t, ok, "unexpected %T", in)
		assert.True(t, hc.RequiresApproval)
		assert.True(t, hc.WhitelistCheck)
		out = append(out, hc.Command)
	}
	return out
}

func TestDeploymentInstructions(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{deployTicket, []string{"pm2 restart whatsapp-bot-builder"}},
		{"Der n8n docker container hängt", []string{"docker restart n8n"}},
		{"Caddy reagiert nicht, bitte systemctl restart", []string{"caddy reload", "systemctl restart caddy"}},
		{"Seite lädt langsam", []string{"pm2 restart whatsapp-bot-builder"}},
		{"Der support-mcp-server bot startet nicht", []string{"pm2 restart support-mcp-server"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cfg := Configuration{Type: TypeDeploymentConfig, Name: deploymentName}
			assert.Equal(t, tt.want, commands(t, synthesize(cfg, tt.text, "")))
		})
	}
}

func TestEnvInstructions(t *testing.T) {
	cfg := Configuration{Type: TypeEnvVar, Name: "SUPABASE_SERVICE_ROLE_KEY", Description: "Service role key"}

	ins := synthesize(cfg, envTicket, "")
	require.Len(t, ins, 1)
	ph, ok := ins[0].(*instruction.EnvAddPlaceholder)
	require.True(t, ok)
	assert.Equal(t, "SUPABASE_SERVICE_ROLE_KEY", ph.Key)
	assert.Equal(t, "FIXME_SUPABASE_SERVICE_ROLE_KEY", ph.Value)
	assert.Equal(t, "Service role key", ph.Comment)
	assert.Equal(t, ".env.local", ph.Target())

	assert.Empty(t, synthesize(cfg, "Login dauert lange", ""))
}

func TestDatabaseInstructions(t *testing.T) {
	cfg := Configuration{Type: TypeDatabaseSetting, Name: databaseName}

	t.Run("bot save", func(t *testing.T) {
		ins := synthesize(cfg, "Mein Bot kann nicht gespeichert werden", "")
		require.Len(t, ins, 2)
		mig, ok := ins[0].(*instruction.SupabaseMigration)
		require.True(t, ok)
		assert.Equal(t, "add_bot_user_id", mig.MigrationName)
		assert.True(t, mig.RequiresApproval)
		pol, ok := ins[1].(*instruction.SupabaseRLSPolicy)
		require.True(t, ok)
		assert.Equal(t, "bot_save_policy", pol.PolicyName)
		assert.Equal(t, "bots", pol.TableName)
	})

	t.Run("rls with table", func(t *testing.T) {
		ins := synthesize(cfg, "permission denied for table knowledge_sources", "")
		require.Len(t, ins, 1)
		pol := ins[0].(*instruction.SupabaseRLSPolicy)
		assert.Equal(t, "knowledge_sources_policy", pol.PolicyName)
		assert.Equal(t, "knowledge_sources", pol.TableName)
		assert.Contains(t, pol.SQL, "ON knowledge_sources")
		assert.True(t, pol.RequiresApproval)
	})

	t.Run("rls without table is plan only", func(t *testing.T) {
		assert.Empty(t, synthesize(cfg, "Zugriff verweigert beim Öffnen", ""))
	})
}

func TestEndpointInstructions(t *testing.T) {
	cfg := Configuration{
		Type:     TypeAPIEndpoint,
		Name:     "/api/payments/create",
		Location: "app/api/payments/create/route.ts",
	}

	t.Run("missing route is created", func(t *testing.T) {
		ins := synthesize(cfg, "Stripe checkout bricht ab", t.TempDir())
		require.Len(t, ins, 2)
		cf, ok := ins[0].(*instruction.CreateFile)
		require.True(t, ok)
		assert.Equal(t, cfg.Location, cf.File)
		assert.Contains(t, cf.Content, "export async function POST(request: NextRequest)")
		ph := ins[1].(*instruction.EnvAddPlaceholder)
		assert.Equal(t, "STRIPE_SECRET_KEY", ph.Key)
	})

	t.Run("existing route is modified", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "app", "api", "payments", "create", "route.ts")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("export async function POST() {}\n"), 0o644))

		ins := synthesize(cfg, "PayPal Zahlung schlägt fehl", root)
		require.Len(t, ins, 2)
		cm, ok := ins[0].(*instruction.CodeModify)
		require.True(t, ok)
		require.Len(t, cm.Modifications, 1)
		assert.Equal(t, instruction.ModAdd, cm.Modifications[0].Action)
		assert.Equal(t, "export const dynamic = 'force-dynamic';", cm.Modifications[0].Replace)
		assert.Equal(t, "PAYPAL_CLIENT_SECRET", ins[1].(*instruction.EnvAddPlaceholder).Key)
	})

	t.Run("no known problem", func(t *testing.T) {
		assert.Empty(t, synthesize(cfg, "Die Seite ist langsam", ""))
	})
}

func TestRouteMethod(t *testing.T) {
	tests := map[string]string{
		"/api/knowledge/upload": "POST",
		"/api/bots/list":        "GET",
		"/api/bots/update":      "PUT",
		"/api/bots/delete":      "DELETE",
		"/api/checkout":         "POST",
	}
	for endpoint, want := range tests {
		assert.Equal(t, want, routeMethod(endpoint), endpoint)
	}
	assert.Contains(t, routeTemplate("/api/bots/list"), "export async function GET(request: NextRequest)")
	assert.Contains(t, routeTemplate("/api/bots/list"), "request.nextUrl.searchParams")
}

func TestFrontendInstructions(t *testing.T) {
	cfg := Configuration{Type: TypeFrontendConfig, Name: "lib/pdf/parsePdf.ts", Location: "lib/pdf/parsePdf.ts"}

	ins := synthesize(cfg, pdfTicket, "")
	require.Len(t, ins, 1)
	cm, ok := ins[0].(*instruction.CodeModify)
	require.True(t, ok)
	assert.Equal(t, "lib/pdf/parsePdf.ts", cm.File)
	require.Len(t, cm.Modifications, len(pattern.WorkerImportPatterns))
	for i, m := range cm.Modifications {
		assert.Equal(t, instruction.ModRemove, m.Action)
		assert.Equal(t, pattern.WorkerImportPatterns[i], m.Search)
	}

	t.Run("missing file under root", func(t *testing.T) {
		assert.Empty(t, synthesize(cfg, pdfTicket, t.TempDir()))
	})

	t.Run("non pdf frontend file", func(t *testing.T) {
		other := Configuration{Type: TypeFrontendConfig, Name: "app/layout.tsx", Location: "app/layout.tsx"}
		assert.Empty(t, synthesize(other, pdfTicket, ""))
	})
}
