package autopatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/secrets"
)

const (
	maxSlugLength        = 60
	maxFileExcerpt       = 2000
	maxConfigExcerpt     = 500
	maskedPrefixLength   = 8
	planTimestampLayout  = "20060102T150405Z"
	defaultGoal          = "Provide an automated repair routine."
	defaultStep          = "Ask the autopatch agent for concrete steps and add them here."
	defaultValidation    = "Define tests (e.g. `npm run test`, end-to-end or manual QA)."
	defaultRolloutAdvice = "Apply changes, `npm run build`, `pm2 restart whatsapp-bot-builder --update-env`."
)

// PlanContext is the ticket context rendered into a plan artifact.
type PlanContext struct {
	TicketID    string
	Title       string
	Description string
	Locale      string
	Summary     string
}

// PlanWriter persists autopatch_plan actions as markdown artifacts.
type PlanWriter struct {
	dir      string
	scrubber secrets.Scrubber
	logger   *zap.Logger
	now      func() time.Time
}

// NewPlanWriter creates a writer storing artifacts under dir. A nil scrubber
// writes content unredacted apart from env value masking.
func NewPlanWriter(dir string, scrubber secrets.Scrubber, logger *zap.Logger) (*PlanWriter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("plan directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanWriter{
		dir:      dir,
		scrubber: scrubber,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Dir returns the artifact directory.
func (w *PlanWriter) Dir() string { return w.dir }

// Write renders action and stores it, returning the artifact path.
func (w *PlanWriter) Write(ctx context.Context, action Action, pc PlanContext) (string, error) {
	if action.Type != ActionAutopatchPlan {
		return "", fmt.Errorf("plan writer: unexpected action type %q", action.Type)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("plan writer: create directory: %w", err)
	}

	now := w.now().UTC()
	payload := action.Payload
	if payload == nil {
		payload = &PlanPayload{}
	}
	fixName := payload.FixName
	if strings.TrimSpace(fixName) == "" {
		fixName = pc.Summary
	}

	slug := Slug(pc.TicketID+"-"+fixName, maxSlugLength)
	if slug == "" {
		slug = "plan"
	}
	path := filepath.Join(w.dir, now.Format(planTimestampLayout)+"-"+slug+".md")

	content := renderPlan(fixName, payload, pc, now)
	if w.scrubber != nil && w.scrubber.IsEnabled() {
		if res := w.scrubber.Scrub(content); res.HasFindings() {
			w.logger.Warn("redacted secrets from plan artifact",
				zap.String("ticket_id", pc.TicketID),
				zap.Int("findings", res.TotalFindings))
			content = res.Scrubbed
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("plan writer: write %s: %w", path, err)
	}
	w.logger.Info("autopatch plan persisted",
		zap.String("ticket_id", pc.TicketID),
		zap.String("path", path))
	return path, nil
}

func renderPlan(fixName string, p *PlanPayload, pc PlanContext, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	numbered := func(items []string, fallback string) {
		if len(items) == 0 {
			items = []string{fallback}
		}
		for i, it := range items {
			line("%d. %s", i+1, it)
		}
	}

	line("# Autopatch Plan: %s", fixName)
	line("")
	line("- Ticket: `%s`", pc.TicketID)
	line("- Created: %s", now.Format(time.RFC3339))
	if pc.Locale != "" {
		line("- Locale: %s", pc.Locale)
	}
	line("")
	line("## Context")
	line("%s", firstNonEmpty(pc.Summary, pc.Description, "(no summary available)"))
	line("")
	line("### Initial situation")
	line("%s", firstNonEmpty(pc.Description, "(no description in ticket)"))
	line("")
	line("## Goal")
	line("%s", firstNonEmpty(p.Goal, defaultGoal))
	line("")
	line("## Affected files")
	if len(p.TargetFiles) == 0 {
		line("- (not specified yet)")
	}
	for _, f := range p.TargetFiles {
		line("- %s", f)
	}
	line("")
	line("## Steps")
	numbered(p.Steps, defaultStep)
	line("")
	line("## Tests & validation")
	numbered(p.Validation, defaultValidation)
	line("")
	line("## Rollout")
	numbered(p.Rollout, defaultRolloutAdvice)

	if s := p.SystemState; !s.IsEmpty() {
		line("")
		line("## System state")
		if len(s.FileContents) > 0 {
			line("")
			line("### Current file contents")
			for _, f := range sortedKeys(s.FileContents) {
				content := s.FileContents[f]
				line("")
				line("#### %s", f)
				line("```")
				line("%s", truncate(content, maxFileExcerpt))
				if len(content) > maxFileExcerpt {
					line("... (truncated)")
				}
				line("```")
			}
		}
		if len(s.Environment) > 0 {
			line("")
			line("### Environment variables")
			for _, k := range sortedKeys(s.Environment) {
				line("- `%s`: %s", k, MaskEnvValue(k, s.Environment[k]))
			}
		}
		if len(s.Dependencies) > 0 {
			line("")
			line("### Dependencies")
			for _, k := range sortedKeys(s.Dependencies) {
				line("- `%s`: %s", k, s.Dependencies[k])
			}
		}
		if len(s.Configurations) > 0 {
			line("")
			line("### Configuration files")
			for _, k := range sortedKeys(s.Configurations) {
				line("- `%s`: %s", k, truncate(s.Configurations[k], maxConfigExcerpt))
			}
		}
		if len(s.KnowledgeRefs) > 0 {
			line("")
			line("### Knowledge references")
			for _, ref := range s.KnowledgeRefs {
				line("- %s", ref)
			}
		}
		if ws := s.Workspace; ws != nil {
			line("")
			line("### Workspace")
			line("- Revision: `%s`", ws.Revision)
			if ws.Branch != "" {
				line("- Branch: %s", ws.Branch)
			}
			for _, d := range ws.Dirty {
				line("- Uncommitted: %s", d)
			}
		}
	}
	return b.String()
}

// MaskEnvValue masks values of keys that look like credentials, keeping the
// first eight characters.
func MaskEnvValue(key, value string) string {
	upper := strings.ToUpper(key)
	if !strings.Contains(upper, "KEY") && !strings.Contains(upper, "SECRET") && !strings.Contains(upper, "TOKEN") {
		return value
	}
	if len(value) > maskedPrefixLength {
		value = value[:maskedPrefixLength]
	}
	return value + "..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
