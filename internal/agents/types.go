package agents

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/fixd/internal/backup"
	"github.com/fyrsmithlabs/fixd/internal/safety"
)

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// State is the shared mutable state of one workflow execution. Each
// execution owns its State exclusively; agents communicate across steps by
// reading and writing well-known keys.
type State map[string]any

// Well-known state keys.
const (
	KeyExecutionID = "execution_id"
	KeyRepository  = "repository"
	KeyIssues      = "issues"
	KeyFixes       = "fixes"
	KeyPredictions = "predictions"
	KeyPublication = "publication"
)

// Output is the result of one capability invocation. Values are merged
// into the execution state; Summary lands on the step result.
type Output struct {
	Values  map[string]any
	Summary string
}

// Agent is the capability contract every pipeline stage implements.
type Agent interface {
	// Name returns the step identifier this agent serves.
	Name() string

	// Describe returns a human-readable description of what executing
	// this agent will do. Interactive mode surfaces it before asking for
	// a confirm/skip decision.
	Describe() string

	// Execute runs the capability against the execution state.
	Execute(ctx context.Context, st State) (Output, error)
}

// Issue is one static-analysis finding, as delivered by the analysis
// collaborator.
type Issue struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Type     string `json:"type"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
	RuleID   string `json:"rule_id"`
}

// Suggestion is a proposed fix for one issue, as delivered by the
// fix-generation collaborator.
type Suggestion struct {
	FixType       safety.FixType `json:"fix_type"`
	SuggestedCode string         `json:"suggested_code"`
	Confidence    float64        `json:"confidence"`
	Explanation   string         `json:"explanation"`
}

// FixOutcome tracks a fix through its lifecycle.
type FixOutcome string

const (
	FixPending    FixOutcome = "pending"
	FixSuccess    FixOutcome = "success"
	FixFailed     FixOutcome = "failed"
	FixRolledBack FixOutcome = "rolledback"
)

// Fix is one proposed-and-possibly-applied change. A fix moves pending to
// success or failed only after validator approval and application; a
// success or failed fix moves to rolledback only via explicit rollback.
type Fix struct {
	IssueRef      string         `json:"issue_ref"`
	RuleID        string         `json:"rule_id,omitempty"`
	FilePath      string         `json:"file_path"`
	FixType       safety.FixType `json:"fix_type"`
	SuggestedCode string         `json:"suggested_code"`
	Confidence    float64        `json:"confidence"`
	BackupRef     *backup.Ref    `json:"backup_ref,omitempty"`
	AppliedAt     *time.Time     `json:"applied_at,omitempty"`
	Outcome       FixOutcome     `json:"outcome"`
	Reasons       []string       `json:"reasons,omitempty"`
}

// Analyzer is the static-analysis collaborator boundary.
type Analyzer interface {
	Analyze(ctx context.Context, repository string) ([]Issue, error)
}

// Suggester is the fix-generation collaborator boundary. A nil suggestion
// with nil error is valid: the issue stays open.
type Suggester interface {
	Suggest(ctx context.Context, issue Issue) (*Suggestion, error)
}

// PullRequestInput is what the integrator hands the PR host.
type PullRequestInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Branch       string   `json:"branch"`
	ChangedFiles []string `json:"changed_files"`
	Reviewers    []string `json:"reviewers"`
}

// Publisher is the source-control/PR-hosting collaborator boundary.
// Publish returns a reference id or URL used for notifications.
type Publisher interface {
	Publish(ctx context.Context, input PullRequestInput) (string, error)
}

// GitClient commits and pushes changed files on a branch prior to
// publication.
type GitClient interface {
	CommitAndPush(ctx context.Context, branch, message string, files []string) error
}

// MarkFixesRolledBack rewrites every applied fix in the state to the
// rolledback outcome and returns how many changed. The state carries
// fixes either typed or as the generic maps a JSON round-trip through
// history produces; both forms are handled.
func MarkFixesRolledBack(st State) int {
	changed := 0
	switch fixes := st[KeyFixes].(type) {
	case []Fix:
		for i := range fixes {
			if fixes[i].Outcome == FixSuccess {
				fixes[i].Outcome = FixRolledBack
				changed++
			}
		}
		st[KeyFixes] = fixes
	case []any:
		for _, v := range fixes {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if m["outcome"] == string(FixSuccess) {
				m["outcome"] = string(FixRolledBack)
				changed++
			}
		}
	}
	return changed
}

// Typed state accessors. Absent keys yield zero values.

func ExecutionIDFrom(st State) string  { s, _ := st[KeyExecutionID].(string); return s }
func RepositoryFrom(st State) string   { s, _ := st[KeyRepository].(string); return s }
func IssuesFrom(st State) []Issue      { v, _ := st[KeyIssues].([]Issue); return v }
func FixesFrom(st State) []Fix         { v, _ := st[KeyFixes].([]Fix); return v }
func PredictionsFrom(st State) []string { v, _ := st[KeyPredictions].([]string); return v }
