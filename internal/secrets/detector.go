package secrets

import (
	"fmt"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// detector runs the gitleaks rule catalog as a second detection pass
// behind the built-in rules. The default config carries several hundred
// provider-specific patterns the built-in catalog does not duplicate.
type detector struct {
	engine *detect.Detector
}

func newDetector() (*detector, error) {
	engine, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("gitleaks detector: %w", err)
	}
	return &detector{engine: engine}, nil
}

// findings converts gitleaks detections into spans on the content. The
// engine reports the secret value and its line position; spans are
// located by the secret value so every occurrence gets redacted.
func (d *detector) findings(content string) []Finding {
	var out []Finding
	seen := make(map[[2]int]struct{})
	for _, f := range d.engine.DetectString(content) {
		if f.Secret == "" {
			continue
		}
		for from := 0; ; {
			idx := strings.Index(content[from:], f.Secret)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(f.Secret)
			from = end

			span := [2]int{start, end}
			if _, ok := seen[span]; ok {
				continue
			}
			seen[span] = struct{}{}

			out = append(out, Finding{
				RuleID:      f.RuleID,
				Description: f.Description,
				Severity:    "high",
				StartIndex:  start,
				EndIndex:    end,
				Line:        strings.Count(content[:start], "\n") + 1,
			})
		}
	}
	return out
}
