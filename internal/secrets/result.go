package secrets

// Result contains the scrubbing result.
type Result struct {
	// Original is the original input content.
	Original string `json:"-"`

	// Scrubbed is the content with sensitive substrings redacted.
	Scrubbed string `json:"scrubbed"`

	// Findings contains the detections (without the matched values).
	Findings []Finding `json:"findings,omitempty"`

	// TotalFindings is the count of matches found.
	TotalFindings int `json:"total_findings"`

	// ByRule maps rule IDs to finding counts.
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding represents a single detection.
type Finding struct {
	// RuleID identifies which rule matched.
	RuleID string `json:"rule_id"`

	// Description explains what was found.
	Description string `json:"description"`

	// Severity indicates the importance.
	Severity string `json:"severity"`

	// StartIndex is the start position in original content.
	StartIndex int `json:"start_index"`

	// EndIndex is the end position in original content.
	EndIndex int `json:"end_index"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// The matched text is deliberately not included.
}

// HasFindings returns true if any sensitive substrings were found.
func (r *Result) HasFindings() bool {
	return r.TotalFindings > 0
}

// RuleIDs returns the unique rule IDs that matched.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	return ids
}
