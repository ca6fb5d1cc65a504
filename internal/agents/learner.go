package agents

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/patterns"
)

// Learner records workflow outcomes into the pattern store so later
// executions can predict and rank. The store is advisory: an unavailable
// store degrades learning to a zero-count success, never a step failure.
// An unredactable payload is dropped (and counted) rather than stored.
type Learner struct {
	store  *patterns.SanitizingStore
	logger *zap.Logger
}

// NewLearner creates the learning agent.
func NewLearner(store *patterns.SanitizingStore, logger *zap.Logger) *Learner {
	return &Learner{store: store, logger: logger}
}

func (l *Learner) Name() string { return "learn" }

func (l *Learner) Describe() string {
	return "record issue and fix-outcome patterns for future executions"
}

// Execute writes one issue pattern per finding and one fix-outcome pattern
// per attempted fix.
func (l *Learner) Execute(ctx context.Context, st State) (Output, error) {
	repository := RepositoryFrom(st)

	written := 0
	dropped := 0

	record := func(patternType, payload string) {
		_, _, err := l.store.Record(ctx, repository, patternType, payload)
		switch {
		case err == nil:
			written++
		case errors.Is(err, patterns.ErrUnredactable):
			dropped++
			l.logger.Warn("pattern dropped, payload unredactable",
				zap.String("type", patternType))
		case errors.Is(err, patterns.ErrUnavailable):
			l.logger.Warn("pattern store unavailable, learning skipped", zap.Error(err))
		default:
			l.logger.Warn("pattern write failed", zap.Error(err))
		}
	}

	for _, issue := range IssuesFrom(st) {
		record("issue", fmt.Sprintf("%s|%s|%s", issue.RuleID, issue.Type, issue.Severity))
	}

	// Keyed by rule, not issue, so repeat outcomes of the same rule
	// corroborate one pattern across executions.
	for _, fix := range FixesFrom(st) {
		if fix.FixType == "" {
			continue
		}
		record("fix-outcome", fmt.Sprintf("%s|%s|%s", fix.RuleID, fix.FixType, fix.Outcome))
	}

	summary := fmt.Sprintf("recorded %d patterns", written)
	if dropped > 0 {
		summary = fmt.Sprintf("recorded %d patterns, dropped %d unredactable", written, dropped)
	}

	return Output{
		Values:  map[string]any{"patterns_written": written},
		Summary: summary,
	}, nil
}
