package configanalyzer

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/pattern"
)

const (
	serviceBotBuilder = pattern.AppName
	serviceSupportMCP = "support-mcp-server"
	serviceN8N        = "n8n"
	serviceAfrika     = "mcp-afrika-container"
)

var (
	reRestartPM2     = regexp.MustCompile(`(?i)(pm2|bot|whatsapp).*?(reagiert nicht|läuft nicht|hängt|restart|neu starten|startet nicht)`)
	reRestartDocker  = regexp.MustCompile(`(?i)(docker|container).*?(reagiert nicht|läuft nicht|hängt|restart|neu starten|startet nicht)`)
	reReloadCaddy    = regexp.MustCompile(`(?i)(caddy|reverse.*proxy|webserver).*?(reagiert nicht|läuft nicht|reload|neu laden)`)
	reRestartSystemd = regexp.MustCompile(`(?i)(systemctl|systemd|dienst).*?(reagiert nicht|läuft nicht|restart|neu starten)`)
	reEnvProblem     = regexp.MustCompile(`(?i)(env|environment|variable|umgebungsvariable).*?(fehlt|falsch|ungültig|nicht gesetzt|undefined|missing|invalid)`)
	reRLSProblem     = regexp.MustCompile(`(?i)rls|row level security|policy|zugriff verweigert|permission denied`)
	reBotSave        = regexp.MustCompile(`(?i)bot\S*\s.{0,80}?(speicher|save)|(speicher|save)\S*\s.{0,80}?bot`)
	rePayment        = regexp.MustCompile(`(?i)zahlung|payment|checkout|stripe|paypal|apple pay|google pay`)
	reUpload         = regexp.MustCompile(`(?i)upload|hochladen`)
	reWorkerProblem  = regexp.MustCompile(`(?i)worker|module not found|modul.*nicht gefunden|pdf`)
	reTableName      = regexp.MustCompile("(?i)(?:table|tabelle)\\s+[\"'`]?([a-z_][a-z0-9_]*)")
)

// synthesize builds the instructions for c. root, when set, is consulted for
// existing files: routes are modified instead of created and code edits on
// missing files are dropped.
func synthesize(c Configuration, ticketText, root string) []instruction.Instruction {
	switch c.Type {
	case TypeDeploymentConfig:
		return deploymentInstructions(ticketText)
	case TypeEnvVar:
		return envInstructions(c, ticketText)
	case TypeDatabaseSetting:
		return databaseInstructions(ticketText)
	case TypeAPIEndpoint:
		return endpointInstructions(c, ticketText, root)
	case TypeFrontendConfig:
		return frontendInstructions(c, ticketText, root)
	}
	return nil
}

func serviceFor(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, serviceSupportMCP), strings.Contains(lower, "support mcp"):
		return serviceSupportMCP
	case strings.Contains(lower, serviceN8N):
		return serviceN8N
	case strings.Contains(lower, "afrika"):
		return serviceAfrika
	}
	return serviceBotBuilder
}

func deploymentInstructions(text string) []instruction.Instruction {
	svc := serviceFor(text)
	var cmds []string
	if reRestartPM2.MatchString(text) {
		cmds = append(cmds, "pm2 restart "+svc)
	}
	if reRestartDocker.MatchString(text) {
		cmds = append(cmds, "docker restart "+svc)
	}
	if reReloadCaddy.MatchString(text) {
		cmds = append(cmds, "caddy reload")
	}
	if reRestartSystemd.MatchString(text) {
		unit := "caddy"
		if svc == serviceN8N {
			unit = serviceN8N
		}
		cmds = append(cmds, "systemctl restart "+unit)
	}
	if len(cmds) == 0 {
		cmds = append(cmds, "pm2 restart "+svc)
	}

	out := make([]instruction.Instruction, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, &instruction.HetznerCommand{
			Command:          cmd,
			Description:      "Restart " + svc + " on the production server",
			RequiresApproval: true,
			WhitelistCheck:   true,
		})
	}
	return out
}

func envInstructions(c Configuration, text string) []instruction.Instruction {
	if !reEnvProblem.MatchString(text) && !strings.Contains(text, c.Name) {
		return nil
	}
	return []instruction.Instruction{placeholder(c.Name, c.Description)}
}

func placeholder(key, comment string) *instruction.EnvAddPlaceholder {
	return &instruction.EnvAddPlaceholder{
		Key:     key,
		Value:   "FIXME_" + key,
		Comment: comment,
	}
}

func databaseInstructions(text string) []instruction.Instruction {
	var out []instruction.Instruction
	if reBotSave.MatchString(text) {
		out = append(out,
			&instruction.SupabaseMigration{
				SQL:              "ALTER TABLE bots ADD COLUMN IF NOT EXISTS user_id UUID REFERENCES auth.users(id);",
				MigrationName:    "add_bot_user_id",
				Description:      "Ensure bots carry an owning user id",
				RequiresApproval: true,
			},
			&instruction.SupabaseRLSPolicy{
				PolicyName:       "bot_save_policy",
				TableName:        "bots",
				SQL:              "CREATE POLICY IF NOT EXISTS bot_save_policy ON bots FOR INSERT TO authenticated WITH CHECK (auth.uid() = user_id);",
				Description:      "Allow authenticated users to save their own bots",
				RequiresApproval: true,
			},
		)
		return out
	}

	if !reRLSProblem.MatchString(text) {
		return nil
	}
	m := reTableName.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	table := strings.ToLower(m[1])
	policy := table + "_policy"
	return append(out, &instruction.SupabaseRLSPolicy{
		PolicyName: policy,
		TableName:  table,
		SQL: fmt.Sprintf("CREATE POLICY IF NOT EXISTS %s ON %s FOR SELECT TO authenticated USING (auth.uid() = user_id);",
			policy, table),
		Description:      "Allow authenticated users to read their own rows in " + table,
		RequiresApproval: true,
	})
}

func endpointInstructions(c Configuration, text, root string) []instruction.Instruction {
	payment := rePayment.MatchString(text)
	upload := reUpload.MatchString(text)
	botSave := reBotSave.MatchString(text)
	if !payment && !upload && !botSave {
		return nil
	}

	var out []instruction.Instruction
	if fileExists(root, c.Location) {
		line := "export const dynamic = 'force-dynamic';"
		if upload {
			line = "export const runtime = 'nodejs';"
		}
		out = append(out, &instruction.CodeModify{
			File: c.Location,
			Modifications: []instruction.Modification{{
				Action:      instruction.ModAdd,
				Replace:     line,
				Description: "pin route segment config",
			}},
		})
	} else {
		out = append(out, &instruction.CreateFile{
			File:    c.Location,
			Content: routeTemplate(c.Name),
		})
	}

	if payment {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "stripe") {
			out = append(out, placeholder("STRIPE_SECRET_KEY", "Stripe secret key for "+c.Name))
		}
		if strings.Contains(lower, "paypal") {
			out = append(out, placeholder("PAYPAL_CLIENT_SECRET", "PayPal client secret for "+c.Name))
		}
	}
	return out
}

func fileExists(root, rel string) bool {
	if root == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil && info.Mode().IsRegular()
}

// routeMethod derives the HTTP method from the last endpoint segment.
func routeMethod(endpoint string) string {
	seg := strings.ToLower(path.Base(endpoint))
	switch {
	case strings.Contains(seg, "upload"), strings.Contains(seg, "create"):
		return "POST"
	case strings.Contains(seg, "get"), strings.Contains(seg, "list"), strings.Contains(seg, "fetch"):
		return "GET"
	case strings.Contains(seg, "update"), strings.Contains(seg, "edit"):
		return "PUT"
	case strings.Contains(seg, "delete"), strings.Contains(seg, "remove"):
		return "DELETE"
	}
	return "POST"
}

func routeTemplate(endpoint string) string {
	method := routeMethod(endpoint)
	body := "    const body = await request.json().catch(() => null);\n" +
		"    return NextResponse.json({ ok: true, data: body });\n"
	if method == "GET" || method == "DELETE" {
		body = "    const params = Object.fromEntries(request.nextUrl.searchParams);\n" +
			"    return NextResponse.json({ ok: true, params });\n"
	}
	return fmt.Sprintf(`import { NextRequest, NextResponse } from 'next/server';

export const dynamic = 'force-dynamic';

export async function %s(request: NextRequest) {
  try {
%s  } catch (error) {
    console.error('[%s] request failed', error);
    return NextResponse.json({ error: 'Internal Server Error' }, { status: 500 });
  }
}
`, method, body, endpoint)
}

func frontendInstructions(c Configuration, text, root string) []instruction.Instruction {
	lower := strings.ToLower(c.Name)
	if !strings.Contains(lower, "pdf") && !strings.Contains(lower, "knowledge") {
		return nil
	}
	if !reWorkerProblem.MatchString(text) {
		return nil
	}
	switch path.Ext(lower) {
	case ".ts", ".tsx", ".js", ".jsx", ".mjs":
	default:
		return nil
	}
	if root != "" && !fileExists(root, c.Location) {
		return nil
	}

	mods := make([]instruction.Modification, 0, len(pattern.WorkerImportPatterns))
	for _, p := range pattern.WorkerImportPatterns {
		mods = append(mods, instruction.Modification{
			Action:      instruction.ModRemove,
			Search:      p,
			Description: "remove explicit pdf worker import",
		})
	}
	return []instruction.Instruction{&instruction.CodeModify{File: c.Location, Modifications: mods}}
}
