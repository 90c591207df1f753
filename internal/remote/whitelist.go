package remote

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed whitelist.toml
var defaultWhitelist string

// shellMeta are characters that would let a whitelisted prefix smuggle a
// second command into the remote shell.
const shellMeta = ";&|`$<>(){}\\\n\r"

// Rule allows one program with a set of subcommands.
type Rule struct {
	Program        string   `toml:"program"`
	Subcommands    []string `toml:"subcommands"`
	Targets        []string `toml:"targets"`
	TargetOptional bool     `toml:"target_optional"`
	Description    string   `toml:"description"`
}

// Decision is the outcome of a whitelist check.
type Decision struct {
	Allowed bool
	Reason  string
	Rule    *Rule
}

// Whitelist is an allow-list of remote commands.
type Whitelist struct {
	rules []Rule
}

// DefaultWhitelist returns the built-in whitelist.
func DefaultWhitelist() *Whitelist {
	w, err := ParseWhitelist(defaultWhitelist)
	if err != nil {
		panic(fmt.Sprintf("remote: embedded whitelist: %v", err))
	}
	return w
}

// LoadWhitelist reads a whitelist file. An empty path yields the built-in
// whitelist.
func LoadWhitelist(path string) (*Whitelist, error) {
	if path == "" {
		return DefaultWhitelist(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading whitelist %s: %w", path, err)
	}
	w, err := ParseWhitelist(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// ParseWhitelist decodes TOML whitelist rules.
func ParseWhitelist(data string) (*Whitelist, error) {
	var doc struct {
		Rules []Rule `toml:"rules"`
	}
	md, err := toml.Decode(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWhitelist, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidWhitelist, undecoded[0])
	}
	for i, r := range doc.Rules {
		if r.Program == "" || len(r.Subcommands) == 0 {
			return nil, fmt.Errorf("%w: rule %d needs program and subcommands", ErrInvalidWhitelist, i)
		}
	}
	return &Whitelist{rules: doc.Rules}, nil
}

// Rules returns a copy of the configured rules.
func (w *Whitelist) Rules() []Rule {
	return slices.Clone(w.rules)
}

// IsAllowed reports whether command passes the whitelist.
func (w *Whitelist) IsAllowed(command string) bool {
	return w.Check(command).Allowed
}

// Check validates command against the whitelist.
func (w *Whitelist) Check(command string) Decision {
	if strings.ContainsAny(command, shellMeta) {
		return Decision{Reason: "command contains shell metacharacters"}
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Decision{Reason: "empty command"}
	}
	program, args := fields[0], fields[1:]
	if len(args) == 0 {
		return Decision{Reason: fmt.Sprintf("command not in whitelist: %s", program)}
	}

	for i := range w.rules {
		r := &w.rules[i]
		if r.Program != program || !slices.Contains(r.Subcommands, args[0]) {
			continue
		}
		if len(r.Targets) == 0 {
			return Decision{Allowed: true, Rule: r}
		}
		if len(args) < 2 {
			if r.TargetOptional {
				return Decision{Allowed: true, Rule: r}
			}
			return Decision{Reason: fmt.Sprintf("%s %s requires a target", program, args[0])}
		}
		if slices.Contains(r.Targets, args[1]) {
			return Decision{Allowed: true, Rule: r}
		}
		return Decision{Reason: fmt.Sprintf("%s target not allowed: %s", program, args[1]), Rule: r}
	}
	return Decision{Reason: fmt.Sprintf("command not in whitelist: %s", program)}
}

// Err returns nil when allowed and an ErrCommandNotAllowed otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCommandNotAllowed, d.Reason)
}
