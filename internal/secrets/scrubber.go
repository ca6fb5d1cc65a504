package secrets

import (
	"sort"
	"strings"
)

// Scrubber detects and redacts sensitive substrings from content.
type Scrubber interface {
	// Scrub redacts sensitive substrings from the content.
	Scrub(content string) *Result

	// Check detects sensitive substrings without redacting.
	Check(content string) *Result

	// IsEnabled returns whether scrubbing is enabled.
	IsEnabled() bool
}

// scrubber is the default implementation using regexp patterns, with an
// optional gitleaks pass behind them.
type scrubber struct {
	config   *Config
	detector *detector
}

// redaction tracks a span to redact.
type redaction struct {
	start, end int
	ruleID     string
}

// New creates a new Scrubber with the given configuration.
// If config is nil, DefaultConfig() is used.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &scrubber{config: cfg}
	if cfg.Enabled && cfg.Gitleaks {
		d, err := newDetector()
		if err != nil {
			return nil, err
		}
		s.detector = d
	}
	return s, nil
}

// MustNew creates a new Scrubber, panicking on error.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Scrub redacts sensitive substrings from the content.
//
// Each match is replaced with "[REDACTED:<rule-id>]". Overlapping matches
// are merged; the first rule to claim a span names the marker.
func (s *scrubber) Scrub(content string) *Result {
	result := &Result{
		Original: content,
		Scrubbed: content,
		Findings: make([]Finding, 0),
		ByRule:   make(map[string]int),
	}

	if !s.config.Enabled {
		return result
	}

	redactions := make([]redaction, 0)

	for _, rule := range s.config.compiledRules {
		// Cheap keyword pre-check before running the full pattern.
		if len(rule.keywords) > 0 {
			hasKeyword := false
			for _, kw := range rule.keywords {
				if kw.MatchString(content) {
					hasKeyword = true
					break
				}
			}
			if !hasKeyword {
				continue
			}
		}

		matches := rule.pattern.FindAllStringIndex(content, -1)
		for _, match := range matches {
			matchStr := content[match[0]:match[1]]
			if s.isAllowed(matchStr) {
				continue
			}

			line := strings.Count(content[:match[0]], "\n") + 1

			result.Findings = append(result.Findings, Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				StartIndex:  match[0],
				EndIndex:    match[1],
				Line:        line,
			})
			result.ByRule[rule.ID]++

			redactions = append(redactions, redaction{
				start:  match[0],
				end:    match[1],
				ruleID: rule.ID,
			})
		}
	}

	if s.detector != nil {
		for _, f := range s.detector.findings(content) {
			if s.isAllowed(content[f.StartIndex:f.EndIndex]) {
				continue
			}
			result.Findings = append(result.Findings, f)
			result.ByRule[f.RuleID]++
			redactions = append(redactions, redaction{
				start:  f.StartIndex,
				end:    f.EndIndex,
				ruleID: f.RuleID,
			})
		}
	}

	result.TotalFindings = len(result.Findings)

	if len(redactions) > 0 {
		sort.Slice(redactions, func(i, j int) bool {
			return redactions[i].start < redactions[j].start
		})
		merged := mergeRedactions(redactions)

		// Apply in reverse so earlier indices stay valid.
		scrubbed := content
		for i := len(merged) - 1; i >= 0; i-- {
			r := merged[i]
			if r.start >= 0 && r.end <= len(scrubbed) && r.start < r.end {
				scrubbed = scrubbed[:r.start] + marker(r.ruleID) + scrubbed[r.end:]
			}
		}
		result.Scrubbed = scrubbed
	}

	return result
}

// Check detects sensitive substrings without redacting.
func (s *scrubber) Check(content string) *Result {
	result := s.Scrub(content)
	result.Scrubbed = result.Original
	return result
}

// IsEnabled returns whether scrubbing is enabled.
func (s *scrubber) IsEnabled() bool {
	return s.config.Enabled
}

// isAllowed checks if the match is in the allow list.
func (s *scrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

// marker builds the redaction marker for a rule.
func marker(ruleID string) string {
	return "[REDACTED:" + ruleID + "]"
}

// mergeRedactions merges overlapping or adjacent redactions.
// Input must be sorted by start position ascending.
func mergeRedactions(redactions []redaction) []redaction {
	if len(redactions) == 0 {
		return redactions
	}

	merged := []redaction{redactions[0]}
	for i := 1; i < len(redactions); i++ {
		last := &merged[len(merged)-1]
		curr := redactions[i]
		if curr.start <= last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
		} else {
			merged = append(merged, curr)
		}
	}
	return merged
}

// NoopScrubber is a scrubber that does nothing (for testing or disabled mode).
type NoopScrubber struct{}

// Scrub returns the content unchanged.
func (n *NoopScrubber) Scrub(content string) *Result {
	return &Result{Original: content, Scrubbed: content, ByRule: map[string]int{}}
}

// Check returns the content unchanged.
func (n *NoopScrubber) Check(content string) *Result {
	return n.Scrub(content)
}

// IsEnabled always returns false.
func (n *NoopScrubber) IsEnabled() bool {
	return false
}
