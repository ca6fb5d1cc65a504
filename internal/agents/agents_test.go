package agents

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/backup"
	"github.com/fyrsmithlabs/fixd/internal/config"
	"github.com/fyrsmithlabs/fixd/internal/lock"
	"github.com/fyrsmithlabs/fixd/internal/patterns"
	"github.com/fyrsmithlabs/fixd/internal/safety"
	"github.com/fyrsmithlabs/fixd/internal/secrets"
)

// MockAnalyzer is a mock implementation of Analyzer.
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, repository string) ([]Issue, error) {
	args := m.Called(ctx, repository)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Issue), args.Error(1)
}

// MockSuggester is a mock implementation of Suggester.
type MockSuggester struct {
	mock.Mock
}

func (m *MockSuggester) Suggest(ctx context.Context, issue Issue) (*Suggestion, error) {
	args := m.Called(ctx, issue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Suggestion), args.Error(1)
}

// MockPublisher is a mock implementation of Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, input PullRequestInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

// MockGitClient is a mock implementation of GitClient.
type MockGitClient struct {
	mock.Mock
}

func (m *MockGitClient) CommitAndPush(ctx context.Context, branch, message string, files []string) error {
	args := m.Called(ctx, branch, message, files)
	return args.Error(0)
}

func newTestFixer(t *testing.T, suggester Suggester, workDir string) *Fixer {
	t.Helper()
	backups, err := backup.NewManager(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	validator := safety.NewValidator(config.SafetyConfig{AutoApplyThreshold: 0.95, MaxSizeDelta: 4096})
	return NewFixer(suggester, validator, backups, lock.NewPathLocker(), workDir, zap.NewNop())
}

func TestReviewerExecute(t *testing.T) {
	analyzer := new(MockAnalyzer)
	issues := []Issue{{ID: "i1", RuleID: "unused-var", FilePath: "main.go", Line: 3}}
	analyzer.On("Analyze", mock.Anything, "github.com/acme/widgets").Return(issues, nil)

	r := NewReviewer(analyzer, zap.NewNop())
	out, err := r.Execute(context.Background(), State{KeyRepository: "github.com/acme/widgets"})
	require.NoError(t, err)

	assert.Equal(t, issues, out.Values[KeyIssues])
	assert.Contains(t, out.Summary, "1 issues")
	analyzer.AssertExpectations(t)
}

func TestReviewerZeroIssuesIsSuccess(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("Analyze", mock.Anything, mock.Anything).Return([]Issue{}, nil)

	r := NewReviewer(analyzer, zap.NewNop())
	out, err := r.Execute(context.Background(), State{KeyRepository: "r"})
	require.NoError(t, err)
	assert.Contains(t, out.Summary, "0 issues")
}

func TestReviewerAnalyzerError(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("Analyze", mock.Anything, mock.Anything).Return(nil, errors.New("engine crashed"))

	r := NewReviewer(analyzer, zap.NewNop())
	_, err := r.Execute(context.Background(), State{KeyRepository: "r"})
	require.Error(t, err)
	assert.Equal(t, ClassCritical, ClassOf(err))
}

func TestFixerZeroIssues(t *testing.T) {
	f := newTestFixer(t, new(MockSuggester), t.TempDir())

	out, err := f.Execute(context.Background(), State{KeyExecutionID: "exec-1"})
	require.NoError(t, err, "no work to do is success, not failure")

	result := out.Values["fix_result"].(ApplyResult)
	assert.Zero(t, result.AppliedCount)
	assert.Zero(t, result.FailedCount)
	assert.Equal(t, []Fix{}, out.Values[KeyFixes].([]Fix))
}

func TestFixerAppliesHighConfidenceFix(t *testing.T) {
	dir := t.TempDir()
	original := "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(1) }\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(original), 0o644))

	issue := Issue{ID: "i1", RuleID: "println-arg", FilePath: "main.go", Line: 5}
	suggester := new(MockSuggester)
	suggester.On("Suggest", mock.Anything, issue).Return(&Suggestion{
		FixType:       safety.FixReplace,
		SuggestedCode: "func main() { fmt.Println(2) }",
		Confidence:    0.99,
	}, nil)

	f := newTestFixer(t, suggester, dir)
	st := State{KeyExecutionID: "exec-1", KeyIssues: []Issue{issue}}

	out, err := f.Execute(context.Background(), st)
	require.NoError(t, err)

	result := out.Values["fix_result"].(ApplyResult)
	assert.Equal(t, 1, result.AppliedCount)

	fixes := out.Values[KeyFixes].([]Fix)
	require.Len(t, fixes, 1)
	assert.Equal(t, FixSuccess, fixes[0].Outcome)
	require.NotNil(t, fixes[0].BackupRef)
	assert.NotNil(t, fixes[0].AppliedAt)

	mutated, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(mutated), "fmt.Println(2)")

	// Rollback restores the pre-fix bytes.
	require.NoError(t, f.backups.Rollback(fixes[0].BackupRef))
	restored, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, original, string(restored))
}

func TestFixerBelowThresholdStaysPending(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n\nvar x = 1\n"), 0o644))

	issue := Issue{ID: "i1", FilePath: "a.go", Line: 3}
	suggester := new(MockSuggester)
	suggester.On("Suggest", mock.Anything, issue).Return(&Suggestion{
		FixType:       safety.FixReplace,
		SuggestedCode: "var x = 2",
		Confidence:    0.5,
	}, nil)

	f := newTestFixer(t, suggester, dir)
	out, err := f.Execute(context.Background(), State{KeyExecutionID: "e", KeyIssues: []Issue{issue}})
	require.NoError(t, err)

	result := out.Values["fix_result"].(ApplyResult)
	assert.Equal(t, 1, result.ManualCount)
	assert.Zero(t, result.AppliedCount)

	fixes := out.Values[KeyFixes].([]Fix)
	assert.Equal(t, FixPending, fixes[0].Outcome)
	assert.Nil(t, fixes[0].BackupRef, "no mutation may happen without approval")
}

func TestFixerRejectsDangerousSuggestion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n\nvar x = 1\n"), 0o644))

	issue := Issue{ID: "i1", FilePath: "a.go", Line: 3}
	suggester := new(MockSuggester)
	suggester.On("Suggest", mock.Anything, issue).Return(&Suggestion{
		FixType:       safety.FixReplace,
		SuggestedCode: `var x = eval(input)`,
		Confidence:    1.0,
	}, nil)

	f := newTestFixer(t, suggester, dir)
	out, err := f.Execute(context.Background(), State{KeyExecutionID: "e", KeyIssues: []Issue{issue}})
	require.NoError(t, err)

	fixes := out.Values[KeyFixes].([]Fix)
	assert.Equal(t, FixFailed, fixes[0].Outcome)
	assert.Contains(t, fixes[0].Reasons[0], "dangerous construct")

	content, _ := os.ReadFile(filepath.Join(dir, "a.go"))
	assert.Equal(t, "package a\n\nvar x = 1\n", string(content), "rejected fix must not touch the file")
}

func TestFixerNoSuggestionLeavesIssueOpen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))

	issue := Issue{ID: "i1", FilePath: "a.go", Line: 1}
	suggester := new(MockSuggester)
	suggester.On("Suggest", mock.Anything, issue).Return(nil, nil)

	f := newTestFixer(t, suggester, dir)
	out, err := f.Execute(context.Background(), State{KeyExecutionID: "e", KeyIssues: []Issue{issue}})
	require.NoError(t, err)

	result := out.Values["fix_result"].(ApplyResult)
	assert.Equal(t, 1, result.OpenCount)
}

func TestFixerSuggesterFailureIsTransient(t *testing.T) {
	dir := t.TempDir()
	issue := Issue{ID: "i1", FilePath: "a.go", Line: 1}
	suggester := new(MockSuggester)
	suggester.On("Suggest", mock.Anything, issue).Return(nil, errors.New("suggestion service down"))

	f := newTestFixer(t, suggester, dir)
	_, err := f.Execute(context.Background(), State{KeyExecutionID: "e", KeyIssues: []Issue{issue}})
	require.Error(t, err)
	assert.Equal(t, ClassTransient, ClassOf(err))
}

func TestApplyFixType(t *testing.T) {
	original := []byte("one\ntwo\nthree")

	tests := []struct {
		name    string
		fixType safety.FixType
		code    string
		line    int
		want    string
		wantErr bool
	}{
		{"replace", safety.FixReplace, "TWO", 2, "one\nTWO\nthree", false},
		{"insert", safety.FixInsert, "zero", 1, "zero\none\ntwo\nthree", false},
		{"delete", safety.FixDelete, "", 2, "one\nthree", false},
		{"format", safety.FixFormat, "whole new file", 0, "whole new file", false},
		{"line out of range", safety.FixReplace, "x", 99, "", true},
		{"unknown type", safety.FixType("exec"), "x", 1, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyFixType(original, tt.fixType, tt.code, tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarkFixesRolledBack(t *testing.T) {
	t.Run("typed fixes", func(t *testing.T) {
		st := State{KeyFixes: []Fix{
			{IssueRef: "i1", Outcome: FixSuccess},
			{IssueRef: "i2", Outcome: FixPending},
			{IssueRef: "i3", Outcome: FixSuccess},
		}}

		assert.Equal(t, 2, MarkFixesRolledBack(st))

		fixes := FixesFrom(st)
		require.Len(t, fixes, 3)
		assert.Equal(t, FixRolledBack, fixes[0].Outcome)
		assert.Equal(t, FixPending, fixes[1].Outcome, "unapplied fixes keep their outcome")
		assert.Equal(t, FixRolledBack, fixes[2].Outcome)
	})

	t.Run("fixes decoded from history", func(t *testing.T) {
		// A history round-trip turns the fixes into generic JSON maps.
		raw, err := json.Marshal(State{KeyFixes: []Fix{{IssueRef: "i1", Outcome: FixSuccess}}})
		require.NoError(t, err)
		var st State
		require.NoError(t, json.Unmarshal(raw, &st))

		assert.Equal(t, 1, MarkFixesRolledBack(st))

		fixes, ok := st[KeyFixes].([]any)
		require.True(t, ok)
		assert.Equal(t, string(FixRolledBack), fixes[0].(map[string]any)["outcome"])
	})

	t.Run("no fixes", func(t *testing.T) {
		assert.Zero(t, MarkFixesRolledBack(State{}))
	})
}

func TestIntegratorPublishes(t *testing.T) {
	git := new(MockGitClient)
	publisher := new(MockPublisher)

	fixes := []Fix{
		{FilePath: "b.go", Outcome: FixSuccess, FixType: safety.FixReplace, IssueRef: "i2", Confidence: 0.97},
		{FilePath: "a.go", Outcome: FixSuccess, FixType: safety.FixDelete, IssueRef: "i1", Confidence: 0.99},
		{FilePath: "c.go", Outcome: FixFailed},
	}

	git.On("CommitAndPush", mock.Anything, "fixd/exec-1", mock.Anything, []string{"a.go", "b.go"}).Return(nil)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(in PullRequestInput) bool {
		return in.Branch == "fixd/exec-1" && len(in.ChangedFiles) == 2 && len(in.Reviewers) == 1
	})).Return("https://github.com/acme/widgets/pull/7", nil)

	i := NewIntegrator(git, publisher, []string{"octocat"}, zap.NewNop())
	out, err := i.Execute(context.Background(), State{KeyExecutionID: "exec-1", KeyFixes: fixes})
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widgets/pull/7", out.Values[KeyPublication])
	git.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestIntegratorNothingToPublish(t *testing.T) {
	git := new(MockGitClient)
	publisher := new(MockPublisher)

	i := NewIntegrator(git, publisher, nil, zap.NewNop())
	out, err := i.Execute(context.Background(), State{KeyExecutionID: "exec-1"})
	require.NoError(t, err)

	assert.Contains(t, out.Summary, "no applied fixes")
	git.AssertNotCalled(t, "CommitAndPush")
	publisher.AssertNotCalled(t, "Publish")
}

func TestIntegratorPushFailureIsTransient(t *testing.T) {
	git := new(MockGitClient)
	git.On("CommitAndPush", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("remote hung up"))

	i := NewIntegrator(git, new(MockPublisher), nil, zap.NewNop())
	_, err := i.Execute(context.Background(), State{
		KeyExecutionID: "e",
		KeyFixes:       []Fix{{FilePath: "a.go", Outcome: FixSuccess}},
	})
	require.Error(t, err)
	assert.Equal(t, ClassTransient, ClassOf(err))
}

func newSanitizingMemoryStore(t *testing.T) *patterns.SanitizingStore {
	t.Helper()
	return patterns.NewSanitizingStore(patterns.NewMemoryStore(), secrets.MustNew(nil), zap.NewNop())
}

func TestLearnerRecordsPatterns(t *testing.T) {
	store := newSanitizingMemoryStore(t)
	l := NewLearner(store, zap.NewNop())

	st := State{
		KeyRepository: "github.com/acme/widgets",
		KeyIssues: []Issue{
			{RuleID: "unused-var", Type: "lint", Severity: "low"},
			{RuleID: "unused-var", Type: "lint", Severity: "low"},
		},
		KeyFixes: []Fix{
			{RuleID: "unused-var", FixType: safety.FixDelete, Outcome: FixSuccess},
		},
	}

	out, err := l.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Values["patterns_written"])

	// Identical issues corroborate one pattern.
	key, p, err := store.Record(context.Background(), "github.com/acme/widgets", "issue", "unused-var|lint|low")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Frequency)
	assert.NotEmpty(t, key.PayloadHash)
}

// unavailableStore simulates a down backing store.
type unavailableStore struct{}

func (unavailableStore) Put(context.Context, patterns.Key, patterns.Pattern) error {
	return patterns.ErrUnavailable
}
func (unavailableStore) Get(context.Context, patterns.Key) (*patterns.Pattern, error) {
	return nil, patterns.ErrUnavailable
}
func (unavailableStore) Scan(context.Context, string, patterns.ScanFunc) error {
	return patterns.ErrUnavailable
}
func (unavailableStore) IncrementFrequency(context.Context, patterns.Key) (*patterns.Pattern, error) {
	return nil, patterns.ErrUnavailable
}
func (unavailableStore) Delete(context.Context, patterns.Key) error {
	return patterns.ErrUnavailable
}
func (unavailableStore) Close() error { return nil }

func TestLearnerStoreUnavailableIsAdvisory(t *testing.T) {
	store := patterns.NewSanitizingStore(unavailableStore{}, secrets.MustNew(nil), zap.NewNop())
	l := NewLearner(store, zap.NewNop())

	out, err := l.Execute(context.Background(), State{
		KeyRepository: "r",
		KeyIssues:     []Issue{{RuleID: "a", Type: "lint", Severity: "low"}},
	})
	require.NoError(t, err, "store unavailability must not fail the workflow")
	assert.Equal(t, 0, out.Values["patterns_written"])
}

func TestPredictorRanksPatterns(t *testing.T) {
	store := newSanitizingMemoryStore(t)
	ctx := context.Background()

	// Corroborate one rule heavily, another lightly.
	for i := 0; i < 5; i++ {
		_, _, err := store.Record(ctx, "repo", "issue", "hot-rule|lint|high")
		require.NoError(t, err)
	}
	_, _, err := store.Record(ctx, "repo", "issue", "cold-rule|lint|low")
	require.NoError(t, err)

	p := NewPredictor(store, zap.NewNop())
	out, err := p.Execute(ctx, State{KeyRepository: "repo"})
	require.NoError(t, err)

	predicted := out.Values[KeyPredictions].([]string)
	require.Len(t, predicted, 2)
	assert.Equal(t, "hot-rule|lint|high", predicted[0])
}

func TestPredictorStoreUnavailableIsAdvisory(t *testing.T) {
	p := NewPredictor(unavailableStore{}, zap.NewNop())

	out, err := p.Execute(context.Background(), State{KeyRepository: "repo"})
	require.NoError(t, err)
	assert.Empty(t, out.Values[KeyPredictions])
	assert.Contains(t, out.Summary, "unavailable")
}
