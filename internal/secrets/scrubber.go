package secrets

import (
	"sort"
	"strings"
)

// Scrubber redacts credentials from text before it leaves the process.
type Scrubber interface {
	Scrub(content string) *Result
	// Check reports findings but returns the content unchanged.
	Check(content string) *Result
	IsEnabled() bool
}

type scrubber struct {
	cfg      *Config
	gitleaks *gitleaksDetector
}

// New returns a Scrubber for cfg. A nil cfg selects DefaultConfig.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &scrubber{cfg: cfg}
	if cfg.Enabled && cfg.Gitleaks {
		g, err := newGitleaksDetector()
		if err != nil {
			return nil, err
		}
		s.gitleaks = g
	}
	return s, nil
}

// MustNew is New for static configurations; it panics on error.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *scrubber) IsEnabled() bool { return s.cfg.Enabled }

func (s *scrubber) Scrub(content string) *Result {
	res := &Result{Original: content, Scrubbed: content, ByRule: map[string]int{}}
	if !s.cfg.Enabled || content == "" {
		return res
	}

	findings := s.builtin(content)
	if s.gitleaks != nil {
		for _, f := range s.gitleaks.find(content) {
			if !s.allowed(content[f.StartIndex:f.EndIndex]) {
				findings = append(findings, f)
			}
		}
	}
	if len(findings) == 0 {
		return res
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].StartIndex < findings[j].StartIndex
	})
	for i := range findings {
		findings[i].Line = strings.Count(content[:findings[i].StartIndex], "\n") + 1
		res.ByRule[findings[i].RuleID]++
	}
	res.Findings = findings
	res.TotalFindings = len(findings)
	res.Scrubbed = redact(content, findings, s.cfg.RedactionString)
	return res
}

func (s *scrubber) Check(content string) *Result {
	res := s.Scrub(content)
	res.Scrubbed = content
	return res
}

func (s *scrubber) builtin(content string) []Finding {
	var out []Finding
	for _, r := range s.cfg.compiled {
		if !r.applies(content) {
			continue
		}
		for _, loc := range r.re.FindAllStringSubmatchIndex(content, -1) {
			start, end := r.span(loc)
			if start == end || s.allowed(content[start:end]) {
				continue
			}
			out = append(out, Finding{
				RuleID:      r.ID,
				Description: r.Description,
				Severity:    r.Severity,
				Source:      sourceBuiltin,
				StartIndex:  start,
				EndIndex:    end,
			})
		}
	}
	return out
}

func (s *scrubber) allowed(value string) bool {
	for _, re := range s.cfg.allowed {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// redact replaces each finding span with mask. findings must be sorted by
// start; overlapping spans collapse into one mask.
func redact(content string, findings []Finding, mask string) string {
	var b strings.Builder
	b.Grow(len(content))
	pos, masked := 0, false
	for _, f := range findings {
		if masked && f.StartIndex <= pos {
			if f.EndIndex > pos {
				pos = f.EndIndex
			}
			continue
		}
		b.WriteString(content[pos:f.StartIndex])
		b.WriteString(mask)
		pos, masked = f.EndIndex, true
	}
	b.WriteString(content[pos:])
	return b.String()
}

// NoopScrubber passes content through.
type NoopScrubber struct{}

func (NoopScrubber) Scrub(content string) *Result {
	return &Result{Original: content, Scrubbed: content, ByRule: map[string]int{}}
}

func (n NoopScrubber) Check(content string) *Result { return n.Scrub(content) }

func (NoopScrubber) IsEnabled() bool { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = NoopScrubber{}
	_ Scrubber = (*NoopScrubber)(nil)
)
