package pattern

import (
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// Rule is one catalogue entry. Match returns nil when the rule does not
// apply to text.
type Rule struct {
	ID    string
	Match func(t *ticket.Ticket, text string) *autopatch.Candidate
}

// Matcher runs an ordered rule list against tickets.
type Matcher struct {
	rules  []Rule
	logger *zap.Logger
}

// NewMatcher returns a matcher over the default catalogue.
func NewMatcher(logger *zap.Logger) *Matcher {
	return NewMatcherWithRules(Catalogue(), logger)
}

// NewMatcherWithRules returns a matcher over rules, tried in order.
func NewMatcherWithRules(rules []Rule, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{rules: rules, logger: logger}
}

// Match returns the candidate of the first rule that applies, or nil.
func (m *Matcher) Match(t *ticket.Ticket) *autopatch.Candidate {
	if t == nil {
		return nil
	}
	text := combinedText(t)
	if text == "" {
		return nil
	}

	for _, r := range m.rules {
		if c := r.Match(t, text); c != nil {
			m.logger.Debug("pattern matched",
				zap.String("ticket_id", t.ID),
				zap.String("pattern_id", c.PatternID))
			return c
		}
	}
	return nil
}

// IDs lists the rule identifiers in evaluation order.
func (m *Matcher) IDs() []string {
	ids := make([]string, len(m.rules))
	for i, r := range m.rules {
		ids[i] = r.ID
	}
	return ids
}

// combinedText joins title, description and latest customer message with
// single spaces so that rules may span field boundaries.
func combinedText(t *ticket.Ticket) string {
	return strings.TrimSpace(t.Title + " " + t.Description + " " + t.LatestMessage)
}
