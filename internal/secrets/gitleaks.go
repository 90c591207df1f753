package secrets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// gitleaksDetector runs the gitleaks default rule set over a string.
type gitleaksDetector struct {
	mu sync.Mutex
	d  *detect.Detector
}

func newGitleaksDetector() (*gitleaksDetector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	return &gitleaksDetector{d: d}, nil
}

// find returns one finding per occurrence of every secret gitleaks reports.
// gitleaks reports the secret value and line, so offsets are recovered by
// searching the content.
func (g *gitleaksDetector) find(content string) []Finding {
	g.mu.Lock()
	found := g.d.DetectString(content)
	g.mu.Unlock()

	var out []Finding
	seen := make(map[string]bool, len(found))
	for _, f := range found {
		secret := strings.TrimSpace(f.Secret)
		if secret == "" || seen[secret] {
			continue
		}
		seen[secret] = true
		for from := 0; ; {
			i := strings.Index(content[from:], secret)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, Finding{
				RuleID:      "gitleaks:" + f.RuleID,
				Description: f.Description,
				Severity:    "high",
				Source:      sourceGitleaks,
				StartIndex:  start,
				EndIndex:    start + len(secret),
			})
			from = start + len(secret)
		}
	}
	return out
}
