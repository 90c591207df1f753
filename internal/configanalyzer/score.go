package configanalyzer

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultThreshold is the minimum relevance a configuration needs to match.
const DefaultThreshold = 0.5

const (
	maxPartialScore = 20.0
	keywordWeight   = 0.6
	semanticWeight  = 0.4
	nameMatchBonus  = 0.3
)

var synonyms = map[string][]string{
	"upload":            {"hochladen", "einreichen", "hinzufügen", "upload", "übertragen", "senden"},
	"pdf":               {"pdf", "dokument", "datei", "pdf-datei"},
	"fehler":            {"fehler", "error", "problem", "schiefgelaufen", "funktioniert nicht", "geht nicht"},
	"nicht möglich":      {"nicht möglich", "geht nicht", "funktioniert nicht", "klappt nicht"},
	"api":               {"api", "endpoint", "route", "route-handler"},
	"endpoint":          {"endpoint", "api", "route", "url"},
	"konfiguration":     {"konfiguration", "config", "einstellung", "setting"},
	"umgebungsvariable": {"umgebungsvariable", "env", "environment variable", "env var"},
	"datenbank":         {"datenbank", "database", "db", "supabase"},
	"zugriff":           {"zugriff", "access", "permission", "berechtigung"},
}

var contextGroups = map[string][]string{
	"pdf-upload":      {"pdf", "upload", "hochladen", "datei", "dokument", "wissensquelle", "knowledge"},
	"api-error":       {"api", "endpoint", "route", "fehler", "500", "404", "error"},
	"config-missing":  {"konfiguration", "env", "variable", "fehlt", "nicht gesetzt", "undefined"},
	"database-access": {"datenbank", "zugriff", "rls", "policy", "permission", "verweigert"},
}

var typeKeywords = map[ConfigType][]string{
	TypeEnvVar:           {"env", "variable", "konfiguration", "setting", "config"},
	TypeAPIEndpoint:      {"api", "endpoint", "route", "url", "request"},
	TypeDatabaseSetting:  {"datenbank", "database", "db", "supabase", "rls", "policy"},
	TypeFrontendConfig:   {"frontend", "ui", "komponente", "component", "seite", "page"},
	TypeDeploymentConfig: {"deployment", "server", "pm2", "caddy", "nginx"},
}

var (
	reWord      = regexp.MustCompile(`[\p{L}\p{N}]+`)
	reNameSplit = regexp.MustCompile(`[/\-_.]+`)
)

// text is the normalised ticket text shared by all scorers.
type text struct {
	raw   string
	words map[string]struct{}
}

func newText(s string) text {
	raw := strings.ToLower(s)
	return text{raw: raw, words: wordSet(raw, 0)}
}

func (t text) has(s string) bool {
	return s != "" && strings.Contains(t.raw, s)
}

// Score returns the relevance of c to ticketText in [0,1] together with
// the keywords that contributed.
func Score(ticketText string, c Configuration) (float64, []string) {
	return score(newText(ticketText), c)
}

func score(t text, c Configuration) (float64, []string) {
	kw, matched := keywordScore(t, c)
	sem := semanticScore(t, c)

	s := kw/maxPartialScore*keywordWeight + sem/maxPartialScore*semanticWeight
	for _, part := range reNameSplit.Split(strings.ToLower(c.Name), -1) {
		if len([]rune(part)) <= 2 {
			continue
		}
		if _, ok := t.words[part]; ok {
			s += nameMatchBonus
			break
		}
	}
	if s > 1 {
		s = 1
	}
	return s, matched
}

func keywordScore(t text, c Configuration) (float64, []string) {
	var (
		s       float64
		matched = make(map[string]struct{})
	)
	hit := func(k string, w float64) {
		s += w
		matched[k] = struct{}{}
	}

	name := strings.ToLower(c.Name)
	desc := strings.ToLower(c.Description)
	if t.has(name) {
		hit(c.Name, 10)
	}
	if t.has(desc) {
		hit(c.Description, 8)
	}

	for key, syns := range synonyms {
		if !strings.Contains(name, key) && !containsAny(name, syns) {
			continue
		}
		for _, syn := range syns {
			if t.has(syn) {
				hit(syn, 5)
			}
		}
	}

	for _, issue := range c.PotentialIssues {
		issue = strings.ToLower(issue)
		if t.has(issue) {
			hit(issue, 4)
		}
		for key, syns := range synonyms {
			if !strings.Contains(issue, key) {
				continue
			}
			for _, syn := range syns {
				if t.has(syn) {
					hit(syn, 2)
				}
			}
		}
	}

	var common []string
	for w := range wordSet(name+" "+desc, 3) {
		if _, ok := t.words[w]; ok {
			common = append(common, w)
		}
	}
	if len(common) >= 2 {
		s += 3 * float64(len(common))
		for _, w := range common {
			matched[w] = struct{}{}
		}
	}

	cfgText := configText(c)
	for _, kws := range contextGroups {
		hits := 0
		for _, k := range kws {
			if t.has(k) {
				hits++
			}
		}
		if hits >= 2 && containsAny(cfgText, kws) {
			s += float64(hits) * 2
		}
	}

	out := make([]string, 0, len(matched))
	for k := range matched {
		out = append(out, k)
	}
	sort.Strings(out)
	return s, out
}

func semanticScore(t text, c Configuration) float64 {
	var s float64
	cfgText := configText(c)

	for _, kws := range contextGroups {
		var inText, inConfig, common int
		for _, k := range kws {
			a, b := t.has(k), strings.Contains(cfgText, k)
			if a {
				inText++
			}
			if b {
				inConfig++
			}
			if a && b {
				common++
			}
		}
		if common > 0 {
			s += float64(common) / float64(max(inText, inConfig)) * 10
		}
	}

	if kws := typeKeywords[c.Type]; len(kws) > 0 {
		hits := 0
		for _, k := range kws {
			if t.has(k) {
				hits++
			}
		}
		s += float64(hits) / float64(len(kws)) * 5
	}

	cfgWords := wordSet(cfgText, 0)
	common := 0
	for w := range cfgWords {
		if _, ok := t.words[w]; ok {
			common++
		}
	}
	if n := max(len(t.words), len(cfgWords)); n > 0 {
		s += float64(common) / float64(n) * 8
	}

	if s > maxPartialScore {
		s = maxPartialScore
	}
	return s
}

func configText(c Configuration) string {
	parts := append([]string{c.Name, c.Description, c.Location}, c.PotentialIssues...)
	return strings.ToLower(strings.Join(parts, " "))
}

// wordSet returns the distinct lower-case words of s longer than minLen runes.
func wordSet(s string, minLen int) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range reWord.FindAllString(strings.ToLower(s), -1) {
		if len([]rune(w)) > minLen {
			out[w] = struct{}{}
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// rank scores every configuration and returns those at or above threshold,
// best first. Ties keep extraction order.
func rank(t text, cfgs []Configuration, threshold float64) []Scored {
	var out []Scored
	for _, c := range cfgs {
		s, kws := score(t, c)
		if s < threshold {
			continue
		}
		out = append(out, Scored{Configuration: c, Score: s, MatchedKeywords: kws})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
