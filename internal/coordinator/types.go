package coordinator

import (
	"time"

	"github.com/fyrsmithlabs/fixd/internal/agents"
)

// Status is the lifecycle state of a workflow execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"

	// StatusPartial marks an execution where some steps completed and
	// others were skipped or failed without aborting the workflow.
	StatusPartial Status = "partial"
)

// StepStatus is the lifecycle state of a single step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult records one step's outcome within an execution.
type StepResult struct {
	StepName   string     `json:"step_name"`
	Status     StepStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	RetryCount int        `json:"retry_count"`
}

// WorkflowExecution is the full record of one workflow run.
type WorkflowExecution struct {
	ID           string       `json:"id"`
	TemplateName string       `json:"template_name"`
	Status       Status       `json:"status"`
	State        agents.State `json:"state"`
	Steps        []StepResult `json:"steps"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  time.Time    `json:"completed_at"`

	// Error carries an execution-level failure reason, such as an
	// unknown template. Step-level errors live in Steps.
	Error string `json:"error,omitempty"`

	// Duration is always CompletedAt - StartedAt once the execution
	// reaches a terminal status.
	Duration time.Duration `json:"duration"`
}

// Terminal reports whether the execution has reached a final status.
func (e *WorkflowExecution) Terminal() bool {
	switch e.Status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusPartial:
		return true
	}
	return false
}
