package pattern

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// Rule identifiers.
const (
	IDMissingTranslation      = "missing-translation"
	IDNullGuard               = "type-error-null-guard"
	IDMissingImport           = "reference-error-missing-import"
	IDNetworkFetchFailed      = "network-fetch-failed"
	IDMissingLocaleFile       = "missing-locale-file"
	IDMissingEnvVariable      = "missing-env-variable"
	IDWhatsAppLinkButton      = "whatsapp-link-button-issue"
	IDRealtimeQuota           = "realtime-quota-exceeded"
	IDPDFContentNotRecognized = "pdf-content-not-recognized"
	IDBotBuilderLoadError     = "bot-builder-load-error"
	IDAnalyticsDataMissing    = "analytics-data-missing"
	IDPDFWorkerModule         = "pdf-worker-module-not-found"
	IDKnowledgeUploadFailed   = "knowledge-upload-failed"
	IDEmbedCodeInvalid        = "embed-code-invalid"
	IDBotSettingsSaveFailed   = "bot-settings-save-failed"
)

// BaseLocale is the locale every other locale file is derived from.
const BaseLocale = "de"

// AppName is the pm2 process that serves the target application.
const AppName = "whatsapp-bot-builder"

const stacktraceTarget = "<file from stack trace>"

var (
	reMissingMessage = regexp.MustCompile(`(?i)MISSING_MESSAGE:\s*([A-Za-z0-9._-]+)`)
	reNullAccess     = regexp.MustCompile(`(?i)Cannot (?:read|set) (?:properties|property) of (?:undefined|null)`)
	reReferenceError = regexp.MustCompile(`(?i)ReferenceError:\s+([A-Za-z0-9_$.]+)\s+is\s+not\s+defined`)
	reNetwork        = regexp.MustCompile(`(?i)(Failed to fetch|NetworkError|net::ERR_FAILED|502|504|ECONNREFUSED)`)
	reLocaleFile     = regexp.MustCompile(`(?i)messages/([a-z]{2}(?:-[a-z]{2})?)\.json['"]`)
	reMissingEnv     = regexp.MustCompile(`(?i)Missing(?: required)? environment variable[:\s]+([A-Z0-9_]+)`)
	reProcessEnv     = regexp.MustCompile(`(?i)process\.env\.([A-Z0-9_]+)\s+(?:is|was)\s+(?:undefined|not set)`)

	rePDFWorker = regexp.MustCompile(`(?i)(pdf.*worker.*module|worker.*module.*not.*found|cannot.*find.*module.*pdf|pdf\.worker\.mjs|pdf\.worker\.js|worker.*nicht.*gefunden|pdf.*upload.*fehlgeschlagen.*worker|pdf.*upload.*nicht.*möglich|pdf.*auf.*hauptseite.*upload|pdf.*hochladen.*fehler|pdf.*wird.*nicht.*hochgeladen|pdf.*upload.*funktioniert.*nicht)`)

	// reWorkerKeywords are the narrow-rule keywords knowledge-upload-failed
	// must not claim.
	reWorkerKeywords = regexp.MustCompile(`(?i)(pdf.*worker|worker.*module|cannot.*find.*module.*pdf)`)

	reKnowledgeUpload = regexp.MustCompile(`(?i)(wissensquelle.*upload.*fehlgeschlagen|pdf.*upload.*fehler|pdf.*hochladen.*(fehler|schiefgelaufen|fehlgeschlagen)|knowledge.*source.*error|embedding.*generierung.*fehler|etwas.*ist.*schiefgelaufen.*pdf|fehler.*aufgetreten.*pdf|wissensquelle.*fehler|pdf.*wird.*nicht.*hochgeladen)`)
)

// WorkerImportPatterns match explicit pdf.js worker imports, which break the
// bundled pdf-parse worker resolution.
var WorkerImportPatterns = []instruction.Pattern{
	instruction.Regex(`(?:import|require|from).*pdf\.worker[^'"]*`, true),
	instruction.Regex(`(?:import|require|from).*worker\.mjs[^'"]*`, true),
	instruction.Regex(`(?:import|require|from).*worker\.js[^'"]*`, true),
}

// Catalogue returns the default rules in evaluation order.
func Catalogue() []Rule {
	return []Rule{
		{ID: IDMissingTranslation, Match: matchMissingTranslation},
		{ID: IDNullGuard, Match: matchNullGuard},
		{ID: IDMissingImport, Match: matchMissingImport},
		{ID: IDNetworkFetchFailed, Match: matchNetwork},
		{ID: IDMissingLocaleFile, Match: matchMissingLocale},
		{ID: IDMissingEnvVariable, Match: matchMissingEnv},
		planRule(whatsAppLinkButton),
		planRule(realtimeQuota),
		planRule(pdfContentNotRecognized),
		planRule(botBuilderLoadError),
		planRule(analyticsDataMissing),
		{ID: IDPDFWorkerModule, Match: matchPDFWorker},
		{ID: IDKnowledgeUploadFailed, Match: matchKnowledgeUpload},
		planRule(embedCodeInvalid),
		planRule(botSettingsSaveFailed),
	}
}

func defaultRollout() []string {
	return []string{"`npm run build`", "`pm2 restart " + AppName + " --update-env`"}
}

func candidate(id, summary, customerMessage string, plan autopatch.PlanPayload, ins ...instruction.Instruction) *autopatch.Candidate {
	if plan.Rollout == nil {
		plan.Rollout = defaultRollout()
	}
	return &autopatch.Candidate{
		PatternID:       id,
		Summary:         summary,
		CustomerMessage: customerMessage,
		Actions:         []autopatch.Action{autopatch.NewPlanAction(summary, plan)},
		Instructions:    instruction.List(ins),
	}
}

func matchMissingTranslation(_ *ticket.Ticket, text string) *autopatch.Candidate {
	m := reMissingMessage.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	key := m[1]
	summary := fmt.Sprintf("Autopatch: add missing translation %q.", key)

	return candidate(IDMissingTranslation, summary,
		"Danke für den Hinweis! Wir haben umgehend einen Fix vorbereitet, der den fehlenden Text im Eingabeformular ergänzt. Sobald das Update live ist, melden wir uns erneut.",
		autopatch.PlanPayload{
			FixName:     "i18n-" + key,
			Goal:        fmt.Sprintf("Add the missing i18n key %q to every locale file.", key),
			TargetFiles: []string{"messages/de.json", "messages/en.json", "messages/fr.json", "messages/sw.json"},
			Steps: []string{
				fmt.Sprintf("Add %q with proper translations to every messages/*.json.", key),
				"QA: reload the affected page and check that no MISSING_MESSAGE hints remain.",
			},
			Validation: []string{"`npm run lint`", "Manual QA of the affected form."},
		},
		&instruction.I18nAddKey{
			Key: key,
			Translations: map[string]string{
				"de": "Text hinzufügen",
				"en": "Add text",
				"fr": "Ajouter du texte",
				"sw": "Ongeza maandishi",
			},
		},
	)
}

func matchNullGuard(_ *ticket.Ticket, text string) *autopatch.Candidate {
	if !reNullAccess.MatchString(text) {
		return nil
	}
	return candidate(IDNullGuard, "Autopatch: add null safety to the affected component.",
		"Danke für das Feedback! Wir haben eine Null-Safety-Anpassung vorbereitet, damit der Fehler nicht mehr auftritt. Nach dem Rollout erhältst du ein Update.",
		autopatch.PlanPayload{
			FixName:     "frontend-null-guard",
			Goal:        "Avoid null and undefined access in the affected component.",
			TargetFiles: []string{stacktraceTarget},
			Steps: []string{
				"Read the stack trace from the browser console or logs and locate file and line.",
				"Add null/undefined checks (optional chaining or fallback values).",
				"Replay the reproduction path from the ticket and confirm the error is gone.",
			},
			Validation: []string{"`npm run lint`", "`npm run test` (if available)", "Manual QA along the reproduction path."},
		},
	)
}

func matchMissingImport(_ *ticket.Ticket, text string) *autopatch.Candidate {
	m := reReferenceError.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	ident := m[1]
	return candidate(IDMissingImport, fmt.Sprintf("Autopatch: resolve missing reference %q.", ident),
		"Danke für die Meldung! Wir haben den fehlenden Import/Definition vorbereitet. Nach dem Deployment informieren wir dich erneut.",
		autopatch.PlanPayload{
			FixName:     "missing-import-" + ident,
			Goal:        fmt.Sprintf("Import or initialise %q correctly.", ident),
			TargetFiles: []string{stacktraceTarget},
			Steps: []string{
				"Locate the file and line missing the reference from the stack trace.",
				fmt.Sprintf("Add the import or definition for %q.", ident),
				"QA: trigger the feature again and confirm no ReferenceError is raised.",
			},
			Validation: []string{"`npm run lint`", "Manual QA of the reproduced flow."},
		},
	)
}

func matchNetwork(t *ticket.Ticket, text string) *autopatch.Candidate {
	if !reNetwork.MatchString(text) {
		return nil
	}

	msg := "Danke für den Hinweis! Wir haben die Netzwerk-/API-Überwachung aktiviert und einen Fix vorbereitet. Sobald das stabil läuft, bekommst du ein Update."
	if loc := t.Locale(); loc != "" && !strings.HasPrefix(loc, "de") {
		msg = "Thank you! We initiated an automatic fix to stabilize the network/API call and will update you once it is deployed."
	}

	return candidate(IDNetworkFetchFailed, "Autopatch: harden network and API availability.", msg,
		autopatch.PlanPayload{
			FixName:     "network-api-availability",
			Goal:        "Stabilise the API endpoints or handle their failures gracefully.",
			TargetFiles: []string{"lib/api", "app/api/*"},
			Steps: []string{
				"Check API health in monitoring (status pages, logs).",
				"Add fallback and retry logic to the affected fetch calls.",
				"Verify the CORS and proxy configuration (Caddy, Next.js).",
				"Improve timeouts and the error UI.",
			},
			Validation: []string{
				"Monitoring: confirm successful requests after deployment.",
				"Manual QA: replay the affected flow.",
			},
		},
	)
}

func matchMissingLocale(_ *ticket.Ticket, text string) *autopatch.Candidate {
	m := reLocaleFile.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	locale := strings.ToLower(m[1])
	if locale == BaseLocale {
		return nil
	}

	return candidate(IDMissingLocaleFile, fmt.Sprintf("Autopatch: create locale file for %q.", locale),
		"Wir haben eine Standard-Übersetzungsdatei für die gewünschte Sprache angelegt und deployen den Fix. Bitte nach dem Rollout erneut testen.",
		autopatch.PlanPayload{
			FixName:     "missing-locale-" + locale,
			Goal:        fmt.Sprintf("Create a fallback translation file for %q.", locale),
			TargetFiles: []string{"messages/" + locale + ".json"},
			Steps: []string{
				fmt.Sprintf("Copy the base locale (%s) to %q.", BaseLocale, locale),
				"Make sure every key is present.",
				"QA: switch the frontend language and check the UI labels.",
			},
			Validation: []string{"`npm run lint`", "`npm run build`", "Manual QA: switch language."},
		},
		&instruction.CloneLocaleFile{Locale: locale, BaseLocale: BaseLocale, Strategy: instruction.CloneCopy},
	)
}

func matchMissingEnv(_ *ticket.Ticket, text string) *autopatch.Candidate {
	m := reMissingEnv.FindStringSubmatch(text)
	if m == nil {
		m = reProcessEnv.FindStringSubmatch(text)
	}
	if m == nil {
		return nil
	}
	key := m[1]

	return candidate(IDMissingEnvVariable, fmt.Sprintf("Autopatch: add environment variable %q.", key),
		"Wir haben einen Platzhalter für die fehlende Systemvariable gesetzt. Bitte trage danach den finalen Wert ein und gib uns kurz Bescheid, damit wir deployen können.",
		autopatch.PlanPayload{
			FixName:     "missing-env-" + key,
			Goal:        fmt.Sprintf("Make sure %q is set in the server configuration.", key),
			TargetFiles: []string{instruction.DefaultEnvFile},
			Steps: []string{
				fmt.Sprintf("Add a placeholder for %s to %s.", key, instruction.DefaultEnvFile),
				"Look up the correct value in the system documentation and fill it in.",
				"Reload the pm2 environment (`pm2 restart " + AppName + " --update-env`).",
			},
			Validation: []string{"`npm run build`", "Replay the API or checkout flow."},
			Rollout:    []string{"update `" + instruction.DefaultEnvFile + "`", "`pm2 restart " + AppName + " --update-env`"},
		},
		&instruction.EnvAddPlaceholder{
			Key:     key,
			Value:   "FIXME_" + key,
			Comment: fmt.Sprintf("# TODO: Bitte %s mit gültigem Wert ersetzen.", key),
			File:    instruction.DefaultEnvFile,
		},
	)
}

func matchPDFWorker(_ *ticket.Ticket, text string) *autopatch.Candidate {
	if !rePDFWorker.MatchString(text) {
		return nil
	}

	mods := make([]instruction.Modification, 0, len(WorkerImportPatterns))
	for _, p := range WorkerImportPatterns {
		mods = append(mods, instruction.Modification{
			Action:      instruction.ModRemove,
			Search:      p,
			Description: "remove explicit pdf worker import",
		})
	}

	return candidate(IDPDFWorkerModule, "Autopatch: pdf worker module not found, fix the pdf-parse worker path.",
		"Wir haben das PDF Worker-Modul-Problem erkannt und einen Fix vorbereitet. Nach dem Update sollte der PDF-Upload wieder funktionieren.",
		autopatch.PlanPayload{
			FixName:     "api-pdf-worker-module-fix",
			Goal:        "Configure the pdf-parse worker correctly so the worker module resolves.",
			TargetFiles: []string{"lib/pdf/parsePdf.ts", "app/api/knowledge/upload/route.ts", "package.json"},
			Steps: []string{
				"Check that pdf-parse is listed in package.json.",
				"Remove explicit worker path references from parsePdf.ts.",
				"Make sure pdf-parse loads its worker automatically.",
				"If needed, add the worker path to the build configuration.",
				"Test the PDF upload after the fix.",
			},
			Validation: []string{
				"Upload a PDF.",
				"Check the browser console for worker errors.",
				"Ask the RAG chat about the PDF content.",
			},
			Rollout: []string{"`npm install`", "`npm run build`", "`pm2 restart " + AppName + " --update-env`"},
		},
		&instruction.CodeModify{File: "lib/pdf/parsePdf.ts", Modifications: mods},
	)
}

func matchKnowledgeUpload(_ *ticket.Ticket, text string) *autopatch.Candidate {
	if !reKnowledgeUpload.MatchString(text) {
		return nil
	}
	if reWorkerKeywords.MatchString(text) {
		return nil
	}

	return candidate(IDKnowledgeUploadFailed, "Autopatch: knowledge source upload or embedding generation failed.",
		"Wir haben einen Fix vorbereitet, der den Upload und die Verarbeitung von Wissensquellen verbessert. Nach dem Update sollten PDFs und andere Quellen korrekt verarbeitet werden.",
		autopatch.PlanPayload{
			FixName: "api-knowledge-upload-fix",
			Goal:    "Knowledge source upload and embedding generation work correctly.",
			TargetFiles: []string{
				"app/api/knowledge/upload/route.ts",
				"app/api/knowledge/embeddings/route.ts",
				"components/knowledge/KnowledgeManagement.tsx",
			},
			Steps: []string{
				"Check PDF processing (chunkText, parsePdfBuffer).",
				"Check the embeddings API and its fallback.",
				"Make sure status updates are written.",
				"Only poll sources that are still processing.",
			},
			Validation: []string{"Upload a PDF.", "Check the source status.", "Test the RAG chat."},
		},
	)
}

// planSpec describes a rule that only produces a plan.
type planSpec struct {
	id              string
	expr            *regexp.Regexp
	summary         string
	customerMessage string
	plan            autopatch.PlanPayload
}

func planRule(s planSpec) Rule {
	return Rule{
		ID: s.id,
		Match: func(_ *ticket.Ticket, text string) *autopatch.Candidate {
			if !s.expr.MatchString(text) {
				return nil
			}
			plan := s.plan
			plan.TargetFiles = slices.Clone(plan.TargetFiles)
			plan.Steps = slices.Clone(plan.Steps)
			plan.Validation = slices.Clone(plan.Validation)
			return candidate(s.id, s.summary, s.customerMessage, plan)
		},
	}
}

var whatsAppLinkButton = planSpec{
	id:              IDWhatsAppLinkButton,
	expr:            regexp.MustCompile(`(?i)(whatsapp.*link|test.*seite|button.*öffnet|öffnet.*falsch)`),
	summary:         "Autopatch: fix WhatsApp link and test page button URLs.",
	customerMessage: "Danke für den Hinweis! Wir haben einen Fix vorbereitet, der die Button-URLs korrigiert. Sobald das Update live ist, funktionieren beide Buttons korrekt.",
	plan: autopatch.PlanPayload{
		FixName:     "frontend-whatsapp-link-button-fix",
		Goal:        "Correct the swapped WhatsApp link and test page button URLs in EmbedCodeGenerator.tsx.",
		TargetFiles: []string{"components/widget/EmbedCodeGenerator.tsx"},
		Steps: []string{
			"Check the onClick handlers of both buttons.",
			"Make sure embedUrl is built as /de/widget/embed?botId=.",
			"The test page button must open /test-widget.html?bot-id=.",
			"Switch the buttons from <a> to <button> if needed.",
		},
		Validation: []string{"Manual QA: click both buttons.", "Check the browser console for errors."},
	},
}

var realtimeQuota = planSpec{
	id:              IDRealtimeQuota,
	expr:            regexp.MustCompile(`(?i)(realtime.*quota|realtime.*message.*count|realtime.*deaktiviert|polling.*statt)`),
	summary:         "Autopatch: only subscribe to realtime updates for the active ticket.",
	customerMessage: "Wir optimieren die Realtime-Nutzung, damit Updates schneller ankommen und die Quota nicht überschritten wird. Das Update wird in Kürze ausgerollt.",
	plan: autopatch.PlanPayload{
		FixName:     "frontend-realtime-optimization",
		Goal:        "Enable realtime only for the selected ticket instead of all tickets at once.",
		TargetFiles: []string{"app/[locale]/support/messages/SupportMessagesClient.tsx", "lib/supabaseFactory.ts"},
		Steps: []string{
			"Subscribe only when a ticket is selected.",
			"Restrict the channel to the messages of the current ticket.",
			"Remove the channel on cleanup.",
			"Keep polling as a fallback every 8 seconds.",
		},
		Validation: []string{"Check the realtime message count in the Supabase dashboard.", "Manual QA: ticket updates arrive."},
	},
}

var pdfContentNotRecognized = planSpec{
	id:              IDPDFContentNotRecognized,
	expr:            regexp.MustCompile(`(?i)(pdf.*wird.*nicht.*erkannt|pdf.*inhalt|llm.*erkennt.*pdf|rag.*playground.*pdf)`),
	summary:         "Autopatch: improve PDF processing and embedding generation.",
	customerMessage: "Wir haben einen Fix vorbereitet, der die PDF-Verarbeitung verbessert. Nach dem Update sollten PDF-Inhalte korrekt erkannt werden.",
	plan: autopatch.PlanPayload{
		FixName: "api-pdf-embedding-fix",
		Goal:    "PDF content is processed and embeddings are generated.",
		TargetFiles: []string{
			"app/api/knowledge/upload/route.ts",
			"app/api/knowledge/embeddings/route.ts",
			"app/api/knowledge/chat/route.ts",
		},
		Steps: []string{
			"Check the embedding provider endpoint.",
			"Make sure chunkText cannot loop forever.",
			"Generate embeddings synchronously after PDF processing.",
			"Fall back to hash-based embeddings when the API fails.",
		},
		Validation: []string{"Upload a PDF.", "Ask the RAG chat about the PDF content."},
	},
}

var botBuilderLoadError = planSpec{
	id:              IDBotBuilderLoadError,
	expr:            regexp.MustCompile(`(?i)(bot.*builder.*lädt.*nicht|bot.*bearbeiten.*fehler|flow.*daten.*fehlen|botbuilder.*error)`),
	summary:         "Autopatch: bot builder does not load flow data.",
	customerMessage: "Wir haben einen Fix vorbereitet, der das Laden der Bot-Daten verbessert. Nach dem Update sollte der Bot-Builder korrekt funktionieren.",
	plan: autopatch.PlanPayload{
		FixName:     "frontend-bot-builder-load-fix",
		Goal:        "The bot builder loads initialFlow and sets botId on every node.",
		TargetFiles: []string{"components/bot-builder/BotBuilder.tsx"},
		Steps: []string{
			"Check how initialFlow is loaded in useEffect.",
			"Set botId on every node.",
			"Check for hydration mismatches.",
			"Test auto-save.",
		},
		Validation: []string{"Create and edit a bot.", "Save the flow and reload it."},
	},
}

var analyticsDataMissing = planSpec{
	id:              IDAnalyticsDataMissing,
	expr:            regexp.MustCompile(`(?i)(analytics.*daten.*fehlen|analytics.*zeigt.*nichts|conversations.*undefined|messages.*undefined|csv.*export.*fehler)`),
	summary:         "Autopatch: analytics data is not loaded or displayed.",
	customerMessage: "Wir haben einen Fix vorbereitet, der die Analytics-Daten korrekt lädt und anzeigt. Nach dem Update sollten alle Statistiken sichtbar sein.",
	plan: autopatch.PlanPayload{
		FixName:     "frontend-analytics-data-fix",
		Goal:        "Analytics data is loaded from the database and displayed.",
		TargetFiles: []string{"app/[locale]/bots/[id]/analytics/page.tsx", "components/analytics/AnalyticsDashboard.tsx"},
		Steps: []string{
			"Check the analytics, conversations and messages queries.",
			"Define variables before use.",
			"Handle missing data.",
			"Add empty states.",
		},
		Validation: []string{"Open the analytics page.", "Test the CSV export."},
	},
}

var embedCodeInvalid = planSpec{
	id:              IDEmbedCodeInvalid,
	expr:            regexp.MustCompile(`(?i)(embed.*code.*falsch|widget.*url.*fehler|bot.*einbinden.*funktioniert.*nicht|widget.*script.*lädt.*nicht)`),
	summary:         "Autopatch: embed code produces wrong URLs or the widget does not load.",
	customerMessage: "Wir haben einen Fix vorbereitet, der die Embed-Code-Generierung korrigiert. Nach dem Update sollten alle Links und Code-Beispiele korrekt funktionieren.",
	plan: autopatch.PlanPayload{
		FixName: "frontend-embed-code-fix",
		Goal:    "The embed code contains correct URLs and the widget loads.",
		TargetFiles: []string{
			"components/widget/EmbedCodeGenerator.tsx",
			"app/[locale]/widget/embed/page.tsx",
			"public/widget.js",
		},
		Steps: []string{
			"Check embedUrl and widgetUrl generation.",
			"Check the WhatsApp link and test page buttons.",
			"Check widget.js for CORS problems.",
			"Try every code sample.",
		},
		Validation: []string{"Generate the embed code.", "Open the links.", "Load the widget."},
	},
}

var botSettingsSaveFailed = planSpec{
	id:              IDBotSettingsSaveFailed,
	expr:            regexp.MustCompile(`(?i)(bot.*einstellungen.*speichern.*fehler|whatsapp.*setup.*fehlgeschlagen|bot.*status.*toggle.*fehler|settings.*save.*error)`),
	summary:         "Autopatch: bot settings are not saved or the WhatsApp setup fails.",
	customerMessage: "Wir haben einen Fix vorbereitet, der das Speichern der Bot-Einstellungen verbessert. Nach dem Update sollten alle Änderungen korrekt gespeichert werden.",
	plan: autopatch.PlanPayload{
		FixName:     "frontend-bot-settings-fix",
		Goal:        "Bot settings are persisted and the WhatsApp setup completes.",
		TargetFiles: []string{"components/bots/BotDetail.tsx", "components/bots/WhatsAppSetupWizard.tsx"},
		Steps: []string{
			"Check the status toggle handler.",
			"Check the WhatsApp setup wizard.",
			"Use optimistic updates.",
			"Improve error handling.",
		},
		Validation: []string{"Toggle the bot status.", "Run the WhatsApp setup."},
	},
}
