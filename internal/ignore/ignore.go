// Package ignore loads gitignore-style exclusion files for documentation
// indexing.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultFiles are read from the documentation root, in order.
var DefaultFiles = []string{".gitignore", ".knowledgeignore"}

// DefaultPatterns apply when no ignore file exists.
var DefaultPatterns = []string{"node_modules/", "vendor/", "drafts/"}

// Parser reads and parses gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// FallbackPatterns are used when no ignore files are found.
	FallbackPatterns []string
}

// NewParser creates a parser. Nil arguments select the defaults.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	if ignoreFiles == nil {
		ignoreFiles = DefaultFiles
	}
	if fallbackPatterns == nil {
		fallbackPatterns = DefaultPatterns
	}
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// Load reads every ignore file present in root and returns a matcher for
// their combined patterns. Later files take precedence over earlier ones.
func (p *Parser) Load(root string) (*Matcher, error) {
	var lines []string
	foundAny := false
	for _, name := range p.IgnoreFiles {
		fileLines, err := readLines(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		lines = append(lines, fileLines...)
		foundAny = true
	}
	if !foundAny {
		lines = p.FallbackPatterns
	}
	return NewMatcher(lines), nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := parseLine(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// parseLine returns the pattern on line, or "" for blanks and comments.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

// Matcher reports whether a path below the root is excluded.
type Matcher struct {
	patterns []string
	m        gitignore.Matcher
}

// NewMatcher compiles gitignore patterns. Negations ("!keep.md") re-include
// paths excluded by an earlier pattern.
func NewMatcher(patterns []string) *Matcher {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	kept := make([]string, 0, len(patterns))
	seen := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		if p = parseLine(p); p == "" || seen[p] {
			continue
		}
		seen[p] = true
		kept = append(kept, p)
		ps = append(ps, gitignore.ParsePattern(p, nil))
	}
	return &Matcher{patterns: kept, m: gitignore.NewMatcher(ps)}
}

// Match reports whether rel, a slash or OS separated path relative to the
// root, is excluded.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == "" {
		return false
	}
	return m.m.Match(strings.Split(rel, "/"), isDir)
}

// Patterns returns the compiled patterns in order.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return m.patterns
}
