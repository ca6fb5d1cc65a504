package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Reviewer runs the analysis stage: it asks the static-analysis
// collaborator for the repository's current findings and places them in
// the execution state for downstream steps.
type Reviewer struct {
	analyzer Analyzer
	logger   *zap.Logger
}

// NewReviewer creates the analysis agent.
func NewReviewer(analyzer Analyzer, logger *zap.Logger) *Reviewer {
	return &Reviewer{analyzer: analyzer, logger: logger}
}

func (r *Reviewer) Name() string { return "analyze" }

func (r *Reviewer) Describe() string {
	return "run static analysis and collect open issues"
}

// Execute analyzes the repository. Zero findings is success, not failure.
func (r *Reviewer) Execute(ctx context.Context, st State) (Output, error) {
	repository := RepositoryFrom(st)

	issues, err := r.analyzer.Analyze(ctx, repository)
	if err != nil {
		return Output{}, fmt.Errorf("analysis failed for %s: %w", repository, err)
	}

	r.logger.Info("analysis complete",
		zap.String("repository", repository),
		zap.Int("issues", len(issues)),
	)

	return Output{
		Values:  map[string]any{KeyIssues: issues},
		Summary: fmt.Sprintf("found %d issues", len(issues)),
	}, nil
}
