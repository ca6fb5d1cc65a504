package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/backup"
	"github.com/fyrsmithlabs/fixd/internal/lock"
	"github.com/fyrsmithlabs/fixd/internal/safety"
)

// ApplyResult aggregates one fix step's outcomes.
type ApplyResult struct {
	AppliedCount    int `json:"applied_count"`
	FailedCount     int `json:"failed_count"`
	RolledBackCount int `json:"rolled_back_count"`

	// ManualCount counts structurally sound fixes below the auto-apply
	// threshold; they are surfaced for confirmation, not dropped.
	ManualCount int `json:"manual_count"`

	// OpenCount counts issues with no suggestion; they stay open.
	OpenCount int `json:"open_count"`
}

// Fixer applies validated fixes. For each issue it requests a suggestion,
// runs the safety validator over the resulting file, snapshots the target
// ("no backup, no mutation"), and writes the change under a per-file lock
// so concurrent executions never overlap a backup/mutate window.
type Fixer struct {
	suggester Suggester
	validator *safety.Validator
	backups   *backup.Manager
	locker    *lock.PathLocker
	workDir   string
	logger    *zap.Logger
}

// NewFixer creates the fix agent.
func NewFixer(suggester Suggester, validator *safety.Validator, backups *backup.Manager, locker *lock.PathLocker, workDir string, logger *zap.Logger) *Fixer {
	return &Fixer{
		suggester: suggester,
		validator: validator,
		backups:   backups,
		locker:    locker,
		workDir:   workDir,
		logger:    logger,
	}
}

func (f *Fixer) Name() string { return "fix" }

func (f *Fixer) Describe() string {
	return "apply safety-validated fixes for open issues"
}

// Execute processes every pending issue. Zero pending issues is success
// with an explicit zero-count result, never an error.
func (f *Fixer) Execute(ctx context.Context, st State) (Output, error) {
	issues := IssuesFrom(st)
	executionID := ExecutionIDFrom(st)

	result := ApplyResult{}
	fixes := make([]Fix, 0, len(issues))

	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}

		fix, err := f.applyOne(ctx, executionID, issue)
		if err != nil {
			return Output{}, err
		}
		fixes = append(fixes, *fix)

		switch fix.Outcome {
		case FixSuccess:
			result.AppliedCount++
		case FixRolledBack:
			result.RolledBackCount++
		case FixFailed:
			result.FailedCount++
		case FixPending:
			if fix.SuggestedCode == "" {
				result.OpenCount++
			} else {
				result.ManualCount++
			}
		}
	}

	f.logger.Info("fix step complete",
		zap.String("execution_id", executionID),
		zap.Int("applied", result.AppliedCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("rolled_back", result.RolledBackCount),
		zap.Int("manual", result.ManualCount),
	)

	return Output{
		Values: map[string]any{
			KeyFixes:     fixes,
			"fix_result": result,
		},
		Summary: fmt.Sprintf("applied %d, failed %d, rolled back %d, manual %d, open %d",
			result.AppliedCount, result.FailedCount, result.RolledBackCount, result.ManualCount, result.OpenCount),
	}, nil
}

// applyOne runs the full pipeline for a single issue. Returned errors are
// reserved for faults that should fail the whole step; per-fix problems
// land in the Fix record instead.
func (f *Fixer) applyOne(ctx context.Context, executionID string, issue Issue) (*Fix, error) {
	fix := &Fix{
		IssueRef: issue.ID,
		RuleID:   issue.RuleID,
		FilePath: issue.FilePath,
		Outcome:  FixPending,
	}

	suggestion, err := f.suggester.Suggest(ctx, issue)
	if err != nil {
		return nil, Transientf("suggestion request for issue %s: %w", issue.ID, err)
	}
	if suggestion == nil {
		// No suggestion is valid; the issue stays open.
		fix.Reasons = []string{"no suggestion available"}
		return fix, nil
	}

	fix.FixType = suggestion.FixType
	fix.SuggestedCode = suggestion.SuggestedCode
	fix.Confidence = suggestion.Confidence

	path := issue.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.workDir, path)
	}

	// Per-file exclusion covers the whole read/validate/backup/write
	// window.
	key := f.locker.Lock(path)
	defer f.locker.Unlock(key)

	original, err := os.ReadFile(path)
	if err != nil {
		fix.Outcome = FixFailed
		fix.Reasons = []string{fmt.Sprintf("read target: %v", err)}
		return fix, nil
	}

	resulting, err := applyFixType(original, suggestion.FixType, suggestion.SuggestedCode, issue.Line)
	if err != nil {
		fix.Outcome = FixFailed
		fix.Reasons = []string{err.Error()}
		return fix, nil
	}

	decision := f.validator.Validate(safety.Candidate{
		FixType:          suggestion.FixType,
		SuggestedCode:    suggestion.SuggestedCode,
		Confidence:       suggestion.Confidence,
		FilePath:         path,
		OriginalSize:     len(original),
		ResultingContent: resulting,
	})
	if !decision.Approved {
		fix.Reasons = decision.Reasons
		if isManualConfirmation(decision) {
			// Below threshold: stays pending for a human.
			return fix, nil
		}
		fix.Outcome = FixFailed
		return fix, nil
	}

	ref, err := f.backups.Backup(executionID, path)
	if err != nil {
		// No backup, no mutation.
		fix.Outcome = FixFailed
		fix.Reasons = []string{fmt.Sprintf("backup failed: %v", err)}
		return fix, nil
	}
	fix.BackupRef = ref

	if err := os.WriteFile(path, resulting, ref.Mode); err != nil {
		if rbErr := f.backups.Rollback(ref); rbErr != nil {
			f.logger.Error("rollback after failed write also failed",
				zap.String("file", path),
				zap.Error(rbErr),
			)
			fix.Outcome = FixFailed
			fix.Reasons = []string{fmt.Sprintf("write failed: %v; rollback failed: %v", err, rbErr)}
			return fix, nil
		}
		fix.Outcome = FixRolledBack
		fix.Reasons = []string{fmt.Sprintf("write failed, restored original: %v", err)}
		return fix, nil
	}

	now := timeNow()
	fix.AppliedAt = &now
	fix.Outcome = FixSuccess
	return fix, nil
}

// applyFixType produces the file content that results from a fix. Line
// numbers are 1-indexed, matching analysis findings.
func applyFixType(original []byte, fixType safety.FixType, code string, line int) ([]byte, error) {
	switch fixType {
	case safety.FixFormat:
		// Format fixes carry the whole reformatted file.
		return []byte(code), nil
	case safety.FixReplace, safety.FixInsert, safety.FixDelete:
	default:
		return nil, fmt.Errorf("fix type %q is not applicable", fixType)
	}

	lines := strings.Split(string(original), "\n")
	idx := line - 1
	if idx < 0 || idx >= len(lines) {
		return nil, fmt.Errorf("line %d out of range (file has %d lines)", line, len(lines))
	}

	switch fixType {
	case safety.FixReplace:
		lines[idx] = code
	case safety.FixInsert:
		lines = append(lines[:idx], append([]string{code}, lines[idx:]...)...)
	case safety.FixDelete:
		lines = append(lines[:idx], lines[idx+1:]...)
	}

	return []byte(strings.Join(lines, "\n")), nil
}

func isManualConfirmation(d safety.Decision) bool {
	for _, r := range d.Reasons {
		if strings.Contains(r, safety.ReasonManualConfirmation) {
			return true
		}
	}
	return false
}
