package instruction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PatternKind says how a code-modify search term is interpreted.
type PatternKind string

const (
	PatternLiteral PatternKind = "literal"
	PatternRegex   PatternKind = "regex"
)

// Pattern is a code-modify search term.
//
// A literal pattern matches the exact text; a regex pattern is compiled with
// Go's RE2 syntax and its replacement may reference groups as $1 or ${name}.
// Without Global only the first match is rewritten.
type Pattern struct {
	Kind   PatternKind `json:"kind"`
	Value  string      `json:"value"`
	Global bool        `json:"global,omitempty"`

	// Inferred is set when the kind was sniffed from a legacy plain string.
	Inferred bool `json:"-"`
}

// Literal returns a pattern matching value verbatim.
func Literal(value string) Pattern {
	return Pattern{Kind: PatternLiteral, Value: value}
}

// Regex returns a regular-expression pattern.
func Regex(expr string, global bool) Pattern {
	return Pattern{Kind: PatternRegex, Value: expr, Global: global}
}

// IsZero reports whether the pattern is unset.
func (p Pattern) IsZero() bool { return p.Value == "" }

func (p Pattern) String() string {
	if p.Kind == PatternRegex {
		return "/" + p.Value + "/"
	}
	return p.Value
}

// InferPattern classifies a legacy plain-string search term.
//
// A string wrapped in slashes is a global regex for every action. For remove,
// a string containing "(?:", ".*" or a backslash is also a global regex.
// Everything else is a literal matching its first occurrence.
func InferPattern(action ModAction, s string) Pattern {
	var p Pattern
	switch {
	case len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/"):
		p = Regex(s[1:len(s)-1], true)
	case action == ModRemove && (strings.Contains(s, "(?:") || strings.Contains(s, ".*") || strings.Contains(s, `\`)):
		p = Regex(s, true)
	default:
		p = Literal(s)
	}
	p.Inferred = true
	return p
}

// Compile returns the compiled expression for a regex pattern.
func (p Pattern) Compile() (*regexp.Regexp, error) {
	if p.Kind != PatternRegex {
		return regexp.Compile(regexp.QuoteMeta(p.Value))
	}
	re, err := regexp.Compile(p.Value)
	if err != nil {
		return nil, fmt.Errorf("compile search pattern %q: %w", p.Value, err)
	}
	return re, nil
}

// Matches reports whether content contains the pattern.
func (p Pattern) Matches(content string) (bool, error) {
	if p.Kind != PatternRegex {
		return strings.Contains(content, p.Value), nil
	}
	re, err := p.Compile()
	if err != nil {
		return false, err
	}
	return re.MatchString(content), nil
}

// ReplaceIn rewrites the first (or, with Global, every) match in content.
func (p Pattern) ReplaceIn(content, repl string) (string, error) {
	if p.Kind != PatternRegex {
		if p.Global {
			return strings.ReplaceAll(content, p.Value, repl), nil
		}
		return strings.Replace(content, p.Value, repl, 1), nil
	}

	re, err := p.Compile()
	if err != nil {
		return "", err
	}
	if p.Global {
		return re.ReplaceAllString(content, repl), nil
	}

	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return content, nil
	}
	expanded := re.ExpandString(nil, repl, content, loc)
	return content[:loc[0]] + string(expanded) + content[loc[1]:], nil
}

// UnmarshalJSON accepts both the legacy string form and the object form.
func (m *Modification) UnmarshalJSON(data []byte) error {
	type modification Modification
	aux := struct {
		*modification
		Search json.RawMessage `json:"search,omitempty"`
	}{modification: (*modification)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Search = Pattern{}

	raw := strings.TrimSpace(string(aux.Search))
	switch {
	case raw == "" || raw == "null":
		return nil
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(aux.Search, &s); err != nil {
			return err
		}
		if s != "" {
			m.Search = InferPattern(m.Action, s)
		}
		return nil
	default:
		var p Pattern
		if err := json.Unmarshal(aux.Search, &p); err != nil {
			return fmt.Errorf("decode search pattern: %w", err)
		}
		switch p.Kind {
		case "":
			p.Kind = PatternLiteral
		case PatternLiteral, PatternRegex:
		default:
			return fmt.Errorf("%w: unknown pattern kind %q", ErrInvalid, p.Kind)
		}
		m.Search = p
		return nil
	}
}
