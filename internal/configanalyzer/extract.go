package configanalyzer

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
)

var (
	reEnvVar       = regexp.MustCompile(`(?:NEXT_PUBLIC_|SUPABASE_|GROQ_|HETZNER_|OPENAI_|STRIPE_|PAYPAL_)[A-Z_]+`)
	reEndpoint     = regexp.MustCompile(`/api/[a-z0-9/-]+`)
	reDatabase     = regexp.MustCompile(`(?i)\bRLS\b|Row Level Security|policy|trigger|function|migration`)
	reFrontendFile = regexp.MustCompile(`(?i)(component|page|layout|middleware|config)\.(tsx?|jsx?)`)
	reSourcePath   = regexp.MustCompile(`(app/[A-Za-z0-9/._\[\]-]+|components/[A-Za-z0-9/._\[\]-]+)`)
	reDeployment   = regexp.MustCompile(`(?i)pm2|ecosystem|caddy|nginx|docker|deploy`)
	rePDF          = regexp.MustCompile(`(?i)pdf|parsePdf|pdf-parse|worker|chunk|embedding`)
	rePDFLine      = regexp.MustCompile(`lib/pdf|app/api/knowledge|parsePdf|pdf-parse`)
	rePDFPath      = regexp.MustCompile(`(lib/pdf/[A-Za-z0-9/._-]+|app/api/knowledge/[A-Za-z0-9/._-]+)`)
	reFileRef      = regexp.MustCompile(`(\.env[a-z.]*|[a-z0-9_/-][a-z0-9_./-]*\.(?:ts|js|json))`)
)

var (
	envIssues = []string{
		"fehlt", "falsch", "ungültig", "nicht gesetzt",
		"undefined", "missing", "invalid",
	}
	endpointIssues = []string{
		"fehler", "500", "404", "funktioniert nicht", "schiefgelaufen",
		"error", "failed", "nicht erreichbar",
	}
	databaseIssues = []string{
		"zugriff verweigert", "permission denied", "nicht autorisiert",
		"rls fehler", "access denied", "unauthorized",
	}
	frontendIssues = []string{
		"fehler", "rendert nicht", "hydration", "build fehler", "funktioniert nicht",
	}
	deploymentIssues = []string{
		"startet nicht", "crash", "port belegt", "permission denied",
		"deployment fehlgeschlagen", "reagiert nicht", "läuft nicht", "hängt",
		"bot reagiert nicht", "bot läuft nicht", "pm2 restart", "pm2 neu starten",
	}
	pdfIssues = []string{
		"worker nicht gefunden", "module not found", "upload fehlgeschlagen",
		"parsing fehler", "embedding fehler", "pdf upload", "pdf hochladen",
	}
	pdfFallbackFiles = []string{
		"lib/pdf/parsePdf.ts",
		"app/api/knowledge/upload/route.ts",
	}
)

const (
	defaultEnvFile   = instruction.DefaultEnvFile
	migrationsDir    = "supabase/migrations"
	ecosystemFile    = "ecosystem.config.js"
	databaseName     = "Database RLS/Policy"
	deploymentName   = "Deployment-Konfiguration"
	maxDescriptionLn = 200
)

// Extract derives configurations from documents. Results are de-duplicated
// by type and name; the first occurrence wins.
func Extract(docs []knowledge.Document) []Configuration {
	seen := make(map[string]struct{})
	var out []Configuration
	add := func(cs ...Configuration) {
		for _, c := range cs {
			if c.Name == "" {
				continue
			}
			if _, dup := seen[c.key()]; dup {
				continue
			}
			seen[c.key()] = struct{}{}
			out = append(out, c)
		}
	}

	for _, d := range docs {
		content := d.Content
		if strings.TrimSpace(content) == "" {
			continue
		}
		lines := strings.Split(content, "\n")
		add(extractEnvVars(content, lines)...)
		add(extractEndpoints(content, lines)...)
		add(extractDatabase(content)...)
		add(extractFrontend(content, lines)...)
		add(extractDeployment(content)...)
		add(extractPDF(content, lines)...)
	}
	return out
}

func extractEnvVars(content string, lines []string) []Configuration {
	var out []Configuration
	for _, name := range uniqueMatches(reEnvVar, content) {
		desc := describeAfter(lines, name)
		if desc == "" {
			desc = "Environment variable " + name
		}
		loc := findLocation(lines, name)
		if loc == "" {
			loc = defaultEnvFile
		}
		out = append(out, Configuration{
			Type:            TypeEnvVar,
			Name:            name,
			Description:     desc,
			Location:        loc,
			PotentialIssues: envIssues,
			FixStrategies: []string{
				"Check " + name + " in " + defaultEnvFile,
				"Verify that the value of " + name + " is valid",
				"Restart the application after changing " + name,
			},
		})
	}
	return out
}

func extractEndpoints(content string, lines []string) []Configuration {
	var out []Configuration
	for _, ep := range uniqueMatches(reEndpoint, content) {
		ep = strings.TrimRight(ep, "/-")
		if ep == "/api" {
			continue
		}
		desc := lineContaining(lines, ep)
		if desc == "" {
			desc = "API endpoint " + ep
		}
		out = append(out, Configuration{
			Type:            TypeAPIEndpoint,
			Name:            ep,
			Description:     desc,
			Location:        "app" + ep + "/route.ts",
			PotentialIssues: endpointIssues,
			FixStrategies: []string{
				"Check the route handler for " + ep,
				"Check error handling and status codes",
				"Verify request validation and authentication",
			},
		})
	}
	return out
}

func extractDatabase(content string) []Configuration {
	if !reDatabase.MatchString(content) {
		return nil
	}
	return []Configuration{{
		Type:            TypeDatabaseSetting,
		Name:            databaseName,
		Description:     "Row level security policies, triggers and migrations",
		Location:        migrationsDir,
		PotentialIssues: databaseIssues,
		FixStrategies: []string{
			"Check the RLS policies of the affected table",
			"Verify that the migration has been applied",
			"Check the permissions of the authenticated role",
		},
	}}
}

func extractFrontend(content string, lines []string) []Configuration {
	if !reFrontendFile.MatchString(content) {
		return nil
	}
	var paths []string
	for _, l := range lines {
		if !strings.Contains(l, "app/") && !strings.Contains(l, "components/") {
			continue
		}
		paths = append(paths, reSourcePath.FindAllString(l, -1)...)
	}
	var out []Configuration
	for _, p := range dedupe(paths) {
		p = strings.TrimRight(p, "./")
		if !reFrontendFile.MatchString(p) {
			continue
		}
		out = append(out, Configuration{
			Type:            TypeFrontendConfig,
			Name:            p,
			Description:     "Frontend file " + p,
			Location:        p,
			PotentialIssues: frontendIssues,
			FixStrategies: []string{
				"Check " + p + " for runtime errors",
				"Run the production build and fix reported errors",
			},
		})
	}
	return out
}

func extractDeployment(content string) []Configuration {
	if !reDeployment.MatchString(content) {
		return nil
	}
	return []Configuration{{
		Type:            TypeDeploymentConfig,
		Name:            deploymentName,
		Description:     "Process manager, reverse proxy and container setup",
		Location:        ecosystemFile,
		PotentialIssues: deploymentIssues,
		FixStrategies: []string{
			"Check the process status with pm2 list",
			"Restart the affected service",
			"Check the reverse proxy configuration",
		},
	}}
}

func extractPDF(content string, lines []string) []Configuration {
	if !rePDF.MatchString(content) {
		return nil
	}
	var files []string
	for _, l := range lines {
		if rePDFLine.MatchString(l) {
			files = append(files, rePDFPath.FindAllString(l, -1)...)
		}
	}
	files = dedupe(files)
	if len(files) == 0 {
		files = pdfFallbackFiles
	}

	out := make([]Configuration, 0, len(files))
	for _, f := range files {
		f = strings.TrimRight(f, "./")
		out = append(out, Configuration{
			Type:            TypeFrontendConfig,
			Name:            f,
			Description:     "PDF processing: " + f,
			Location:        f,
			PotentialIssues: pdfIssues,
			FixStrategies: []string{
				"Remove explicit pdf.js worker imports from " + f,
				"Let pdf-parse resolve its bundled worker",
				"Re-run the knowledge upload with a sample PDF",
			},
		})
	}
	return out
}

// describeAfter returns the first meaningful line after the one mentioning
// name, falling back to the mentioning line itself.
func describeAfter(lines []string, name string) string {
	for i, l := range lines {
		if !strings.Contains(l, name) {
			continue
		}
		for _, next := range lines[i+1:] {
			next = strings.TrimSpace(next)
			if len(next) > 10 && !strings.HasPrefix(next, "#") {
				return clip(next)
			}
		}
		return clip(strings.TrimSpace(l))
	}
	return ""
}

// findLocation returns a file reference on a line that mentions name
// together with an env or config file.
func findLocation(lines []string, name string) string {
	for _, l := range lines {
		if !strings.Contains(l, name) {
			continue
		}
		lower := strings.ToLower(l)
		if !strings.Contains(lower, ".env") && !strings.Contains(lower, "config") {
			continue
		}
		if m := reFileRef.FindString(lower); m != "" {
			return strings.TrimRight(m, ".")
		}
	}
	return ""
}

func lineContaining(lines []string, s string) string {
	for _, l := range lines {
		if strings.Contains(l, s) {
			return clip(strings.TrimSpace(l))
		}
	}
	return ""
}

func uniqueMatches(re *regexp.Regexp, s string) []string {
	return dedupe(re.FindAllString(s, -1))
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func clip(s string) string {
	s = strings.TrimLeft(s, "-*> ")
	if r := []rune(s); len(r) > maxDescriptionLn {
		return string(r[:maxDescriptionLn])
	}
	return s
}
