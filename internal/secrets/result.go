package secrets

import (
	"errors"
	"sort"
)

// ErrInvalidRule reports a rule or allow-list entry that does not compile.
var ErrInvalidRule = errors.New("invalid secret rule")

// Result is the outcome of one Scrub call.
type Result struct {
	// Original is never serialized.
	Original string `json:"-"`
	Scrubbed string `json:"scrubbed"`

	Findings      []Finding      `json:"findings,omitempty"`
	TotalFindings int            `json:"total_findings"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}

// Finding locates a redacted value. The value itself is not kept.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Source      string `json:"source"`
	StartIndex  int    `json:"start_index"`
	EndIndex    int    `json:"end_index"`
	Line        int    `json:"line"`
}

const (
	sourceBuiltin  = "builtin"
	sourceGitleaks = "gitleaks"
)

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return r != nil && r.TotalFindings > 0
}

// RuleIDs returns the matched rule IDs, sorted.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
