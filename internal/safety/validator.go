// Package safety gates automatic fix application.
//
// The validator is a pure decision function: identical inputs always produce
// identical output and nothing is mutated. Rules run in order and the first
// failure wins; confidence is only consulted after every structural rule has
// passed.
package safety

import (
	"fmt"

	"github.com/fyrsmithlabs/fixd/internal/config"
)

// FixType enumerates the fix shapes the engine may apply.
type FixType string

const (
	FixReplace FixType = "replace"
	FixInsert  FixType = "insert"
	FixDelete  FixType = "delete"
	FixFormat  FixType = "format"
)

// ReasonManualConfirmation marks a fix that is structurally sound but below
// the auto-apply threshold. Such fixes are surfaced, never silently dropped.
const ReasonManualConfirmation = "requires manual confirmation"

// Candidate is a proposed fix with the context the validator needs.
type Candidate struct {
	// FixType is the proposed fix shape.
	FixType FixType

	// SuggestedCode is the code the fix would introduce.
	SuggestedCode string

	// Confidence is the suggestion's [0,1] quality score.
	Confidence float64

	// FilePath selects the syntax grammar for validation.
	FilePath string

	// OriginalSize is the file size in bytes before the fix.
	OriginalSize int

	// ResultingContent is the full file content after applying the fix.
	ResultingContent []byte
}

// Decision is the validator's verdict.
type Decision struct {
	// Approved is true only when every rule passed and confidence meets
	// the auto-apply threshold.
	Approved bool `json:"approved"`

	// Reasons explains a rejection or a manual-confirmation requirement.
	Reasons []string `json:"reasons,omitempty"`
}

// Validator evaluates fix candidates against the safety rules.
type Validator struct {
	threshold    float64
	maxSizeDelta int
}

// NewValidator creates a validator from safety config.
func NewValidator(cfg config.SafetyConfig) *Validator {
	return &Validator{
		threshold:    cfg.AutoApplyThreshold,
		maxSizeDelta: cfg.MaxSizeDelta,
	}
}

// Validate applies the safety rules in order; the first failure wins.
//
//  1. Unknown fix types are rejected: the catalog is closed so a fix can
//     never smuggle in an execution-altering shape.
//  2. Dangerous constructs in the suggested code are rejected regardless of
//     confidence, including confidence 1.0.
//  3. The resulting file must still parse.
//  4. The size delta must stay under the configured ceiling.
//  5. Confidence below the threshold yields approved=false with a
//     manual-confirmation reason.
func (v *Validator) Validate(c Candidate) Decision {
	switch c.FixType {
	case FixReplace, FixInsert, FixDelete, FixFormat:
	default:
		return reject(fmt.Sprintf("fix type %q is not allowed", c.FixType))
	}

	if construct, found := findDangerousConstruct(c.SuggestedCode); found {
		return reject(fmt.Sprintf("suggested code contains dangerous construct: %s", construct))
	}

	if err := checkSyntax(c.FilePath, c.ResultingContent); err != nil {
		return reject(fmt.Sprintf("resulting file fails syntactic validation: %v", err))
	}

	delta := len(c.ResultingContent) - c.OriginalSize
	if delta < 0 {
		delta = -delta
	}
	if delta > v.maxSizeDelta {
		return reject(fmt.Sprintf("size delta %d exceeds ceiling %d", delta, v.maxSizeDelta))
	}

	if c.Confidence < v.threshold {
		return Decision{
			Approved: false,
			Reasons:  []string{fmt.Sprintf("%s: confidence %.2f below threshold %.2f", ReasonManualConfirmation, c.Confidence, v.threshold)},
		}
	}

	return Decision{Approved: true}
}

func reject(reason string) Decision {
	return Decision{Approved: false, Reasons: []string{reason}}
}
