package secrets

import (
	"fmt"
	"regexp"
)

// DefaultRedaction replaces every detected secret value.
const DefaultRedaction = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	Enabled bool `koanf:"enabled"`

	// Rules are the built-in regular expression rules. A rule with a capture
	// group redacts only the first group, so "STRIPE_SECRET_KEY=sk_live_x"
	// keeps its key name.
	Rules []Rule `koanf:"rules"`

	// Gitleaks adds the gitleaks default rule set on top of Rules.
	Gitleaks bool `koanf:"gitleaks"`

	RedactionString string `koanf:"redaction_string"`

	// AllowList holds patterns for values that are never redacted, such as
	// the FIXME_ placeholders written for missing env variables.
	AllowList []string `koanf:"allow_list"`

	compiled []*compiledRule
	allowed  []*regexp.Regexp
}

// Rule is one detection rule.
type Rule struct {
	ID          string   `koanf:"id"`
	Description string   `koanf:"description"`
	Pattern     string   `koanf:"pattern"`
	Keywords    []string `koanf:"keywords"`
	Severity    string   `koanf:"severity"`
}

type compiledRule struct {
	Rule
	re       *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultAllowList keeps generated placeholders readable.
var DefaultAllowList = []string{
	`FIXME_[A-Z0-9_]+`,
	`^\$\{?[A-Z][A-Z0-9_]*\}?$`,
}

// DefaultConfig returns the built-in rules without gitleaks.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Rules:           DefaultRules(),
		RedactionString: DefaultRedaction,
		AllowList:       append([]string(nil), DefaultAllowList...),
	}
}

// Validate compiles rules and allow-list patterns.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RedactionString == "" {
		c.RedactionString = DefaultRedaction
	}

	c.compiled = make([]*compiledRule, 0, len(c.Rules))
	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule %d has no id", ErrInvalidRule, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true
		if r.Pattern == "" {
			return fmt.Errorf("%w: rule %s has no pattern", ErrInvalidRule, r.ID)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidRule, r.ID, err)
		}
		cr := &compiledRule{Rule: r, re: re}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		c.compiled = append(c.compiled, cr)
	}

	c.allowed = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("%w: allow_list %d: %v", ErrInvalidRule, i, err)
		}
		c.allowed = append(c.allowed, re)
	}
	return nil
}

// span returns the byte range to redact for a submatch index slice.
func (r *compiledRule) span(loc []int) (int, int) {
	if len(loc) >= 4 && loc[2] >= 0 {
		return loc[2], loc[3]
	}
	return loc[0], loc[1]
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}
