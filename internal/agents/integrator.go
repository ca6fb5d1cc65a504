package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Integrator publishes applied fixes: changed files are committed and
// pushed on a dedicated branch, then a pull request is opened with the PR
// host. The returned reference lands in the execution state.
type Integrator struct {
	git       GitClient
	publisher Publisher
	reviewers []string
	logger    *zap.Logger
}

// NewIntegrator creates the integration agent.
func NewIntegrator(git GitClient, publisher Publisher, reviewers []string, logger *zap.Logger) *Integrator {
	return &Integrator{git: git, publisher: publisher, reviewers: reviewers, logger: logger}
}

func (i *Integrator) Name() string { return "integrate" }

func (i *Integrator) Describe() string {
	return "commit applied fixes and open a pull request"
}

// Execute publishes the execution's applied fixes. No applied fixes is
// success with nothing published.
func (i *Integrator) Execute(ctx context.Context, st State) (Output, error) {
	executionID := ExecutionIDFrom(st)
	fixes := FixesFrom(st)

	changed := changedFiles(fixes)
	if len(changed) == 0 {
		return Output{Summary: "no applied fixes to publish"}, nil
	}

	branch := "fixd/" + executionID
	message := fmt.Sprintf("fixd: apply %d automated fixes", len(changed))

	if err := i.git.CommitAndPush(ctx, branch, message, changed); err != nil {
		return Output{}, Transientf("commit and push: %w", err)
	}

	input := PullRequestInput{
		Title:        fmt.Sprintf("Automated fixes (%d files)", len(changed)),
		Description:  describeFixes(fixes),
		Branch:       branch,
		ChangedFiles: changed,
		Reviewers:    i.reviewers,
	}

	reference, err := i.publisher.Publish(ctx, input)
	if err != nil {
		return Output{}, Transientf("publish pull request: %w", err)
	}

	i.logger.Info("published fixes",
		zap.String("execution_id", executionID),
		zap.String("reference", reference),
		zap.Int("files", len(changed)),
	)

	return Output{
		Values:  map[string]any{KeyPublication: reference},
		Summary: fmt.Sprintf("published %d files as %s", len(changed), reference),
	}, nil
}

// changedFiles collects the unique paths of successfully applied fixes.
func changedFiles(fixes []Fix) []string {
	seen := make(map[string]bool)
	var files []string
	for _, fix := range fixes {
		if fix.Outcome != FixSuccess || seen[fix.FilePath] {
			continue
		}
		seen[fix.FilePath] = true
		files = append(files, fix.FilePath)
	}
	sort.Strings(files)
	return files
}

// describeFixes renders the PR description body.
func describeFixes(fixes []Fix) string {
	var b strings.Builder
	b.WriteString("Automatically applied fixes, validated and backed up before mutation.\n\n")
	for _, fix := range fixes {
		if fix.Outcome != FixSuccess {
			continue
		}
		fmt.Fprintf(&b, "- `%s`: %s fix for issue %s (confidence %.2f)\n",
			fix.FilePath, fix.FixType, fix.IssueRef, fix.Confidence)
	}
	return b.String()
}
