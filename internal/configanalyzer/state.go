package configanalyzer

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/sanitize"
)

const (
	packageManifest  = "package.json"
	nextConfigFile   = "next.config.js"
	maxConfigCapture = 1000
	maxFileCapture   = 64 << 10
)

var (
	alwaysCapturedEnv = []string{"SUPABASE", "STRIPE", "PAYPAL"}
	dependencyMarkers = []string{"pdf", "parse", "supabase"}
)

// captureState records what the fix for c is about to touch. Read errors
// leave the corresponding section empty.
func (a *Analyzer) captureState(ctx context.Context, c Configuration) *autopatch.SystemState {
	s := &autopatch.SystemState{
		KnowledgeRefs: []string{
			"Configuration: " + c.Name,
			"Type: " + string(c.Type),
			"Description: " + c.Description,
		},
	}
	root := a.cfg.Root
	if root == "" {
		return s
	}

	// Env files are captured key by key below, masked.
	if c.Type != TypeEnvVar {
		if data, ok := readUnder(root, c.Location, maxFileCapture); ok {
			s.FileContents = map[string]string{c.Location: data}
		}
	}

	if env := captureEnv(root, c.Name); len(env) > 0 {
		s.Environment = env
	}

	lowerName := strings.ToLower(c.Name)
	if strings.Contains(lowerName, "pdf") || strings.Contains(lowerName, "parse") {
		if deps := captureDependencies(root); len(deps) > 0 {
			s.Dependencies = deps
		}
	}

	if c.Type == TypeFrontendConfig && strings.Contains(lowerName, "config") {
		if data, ok := readUnder(root, nextConfigFile, maxConfigCapture); ok {
			s.Configurations = map[string]string{nextConfigFile: data}
		}
	}

	if a.workspace != nil {
		ws, err := a.workspace.Snapshot(ctx, root)
		if err != nil {
			a.logger.Debug("workspace snapshot unavailable", zap.Error(err))
		} else {
			s.Workspace = ws
		}
	}
	return s
}

// readUnder reads rel below root, refusing paths that escape it. Content is
// cut at limit bytes.
func readUnder(root, rel string, limit int) (string, bool) {
	if rel == "" {
		return "", false
	}
	path, err := sanitize.Within(root, filepath.FromSlash(rel))
	if err != nil {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if len(data) > limit {
		data = data[:limit]
	}
	return string(data), true
}

// captureEnv returns masked .env.local entries relevant to name.
func captureEnv(root, name string) map[string]string {
	f, err := os.Open(filepath.Join(root, defaultEnvFile))
	if err != nil {
		return nil
	}
	defer f.Close()

	upperName := strings.ToUpper(name)
	out := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		if !strings.Contains(key, upperName) && !containsAny(key, alwaysCapturedEnv) {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		out[key] = autopatch.MaskEnvValue(key, value)
	}
	return out
}

// captureDependencies returns package.json dependencies related to pdf
// parsing and supabase.
func captureDependencies(root string) map[string]string {
	data, err := os.ReadFile(filepath.Join(root, packageManifest))
	if err != nil || !gjson.ValidBytes(data) {
		return nil
	}
	out := make(map[string]string)
	for _, section := range []string{"dependencies", "devDependencies"} {
		gjson.GetBytes(data, section).ForEach(func(k, v gjson.Result) bool {
			if containsAny(strings.ToLower(k.String()), dependencyMarkers) {
				out[k.String()] = v.String()
			}
			return true
		})
	}
	return out
}
