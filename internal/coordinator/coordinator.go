package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/agents"
	"github.com/fyrsmithlabs/fixd/internal/config"
)

// timeNow is swapped in tests.
var timeNow = time.Now

// Decision is an interactive operator's answer for a pending step.
type Decision int

const (
	// DecisionRun executes the step.
	DecisionRun Decision = iota
	// DecisionSkip skips the step and continues with the next one.
	DecisionSkip
	// DecisionAbort cancels the rest of the execution.
	DecisionAbort
)

// DecisionFunc is consulted before each step when the coordinator runs
// interactively. A nil DecisionFunc means every step runs.
type DecisionFunc func(stepName, description string) Decision

// ErrUnknownStep is returned by NewCoordinator when a template names a
// step with no registered agent.
var ErrUnknownStep = errors.New("template references unregistered step")

// Coordinator resolves workflow templates to agents and runs them as a
// synchronous state machine.
type Coordinator struct {
	registry  map[string]agents.Agent
	templates map[string][]string
	critical  map[string]bool
	history   History
	decide    DecisionFunc
	logger    *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDecisionSource makes the coordinator consult fn before each step.
func WithDecisionSource(fn DecisionFunc) Option {
	return func(c *Coordinator) { c.decide = fn }
}

// NewCoordinator builds a coordinator over the given agents. Every step
// name in every template must resolve to a registered agent; an
// unresolvable template is a construction error, not a runtime one.
func NewCoordinator(agentList []agents.Agent, cfg config.WorkflowConfig, history History, logger *zap.Logger, opts ...Option) (*Coordinator, error) {
	registry := make(map[string]agents.Agent, len(agentList))
	for _, a := range agentList {
		registry[a.Name()] = a
	}

	for name, steps := range cfg.Templates {
		for _, step := range steps {
			if _, ok := registry[step]; !ok {
				return nil, fmt.Errorf("%w: template %q step %q", ErrUnknownStep, name, step)
			}
		}
	}

	critical := make(map[string]bool, len(cfg.CriticalSteps))
	for _, step := range cfg.CriticalSteps {
		critical[step] = true
	}

	c := &Coordinator{
		registry:  registry,
		templates: cfg.Templates,
		critical:  critical,
		history:   history,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute runs the named template to a terminal status. It never returns
// an error: every failure mode, including an unknown template, lands in
// the returned execution record.
func (c *Coordinator) Execute(ctx context.Context, templateName string, initial agents.State) *WorkflowExecution {
	exec := &WorkflowExecution{
		ID:           uuid.NewString(),
		TemplateName: templateName,
		Status:       StatusPending,
		State:        agents.State{},
		StartedAt:    timeNow(),
	}
	for k, v := range initial {
		exec.State[k] = v
	}
	exec.State[agents.KeyExecutionID] = exec.ID

	steps, ok := c.templates[templateName]
	if !ok {
		exec.Error = fmt.Sprintf("unknown workflow template %q", templateName)
		c.finish(ctx, exec, StatusFailed)
		return exec
	}

	exec.Steps = make([]StepResult, len(steps))
	for i, name := range steps {
		exec.Steps[i] = StepResult{StepName: name, Status: StepPending}
	}
	exec.Status = StatusRunning

	c.logger.Info("workflow started",
		zap.String("execution_id", exec.ID),
		zap.String("template", templateName),
		zap.Int("steps", len(steps)),
	)

	degraded := false
	for i := range exec.Steps {
		step := &exec.Steps[i]

		// Cancellation is honored only on step boundaries; a running
		// step always finishes or fails on its own terms.
		if ctx.Err() != nil {
			skipRemaining(exec.Steps[i:])
			c.finish(ctx, exec, StatusCancelled)
			return exec
		}

		if c.decide != nil {
			switch c.decide(step.StepName, c.registry[step.StepName].Describe()) {
			case DecisionSkip:
				step.Status = StepSkipped
				step.Output = "skipped by operator"
				degraded = true
				continue
			case DecisionAbort:
				skipRemaining(exec.Steps[i:])
				c.finish(ctx, exec, StatusCancelled)
				return exec
			}
		}

		abort := c.runStep(ctx, exec, step)
		if abort {
			skipRemaining(exec.Steps[i+1:])
			c.finish(ctx, exec, StatusFailed)
			return exec
		}
		if step.Status != StepCompleted {
			degraded = true
		}
	}

	if degraded {
		c.finish(ctx, exec, StatusPartial)
	} else {
		c.finish(ctx, exec, StatusCompleted)
	}
	return exec
}

// runStep executes one step, retrying a transient failure once. It
// reports whether the failure must abort the whole execution.
func (c *Coordinator) runStep(ctx context.Context, exec *WorkflowExecution, step *StepResult) (abort bool) {
	agent := c.registry[step.StepName]
	step.Status = StepRunning

	out, err := agent.Execute(ctx, exec.State)
	if err != nil && agents.ClassOf(err) == agents.ClassTransient {
		c.logger.Warn("step failed, retrying once",
			zap.String("execution_id", exec.ID),
			zap.String("step", step.StepName),
			zap.Error(err),
		)
		step.RetryCount++
		out, err = agent.Execute(ctx, exec.State)
	}

	if err != nil {
		step.Error = err.Error()
		class := agents.ClassOf(err)
		stepErrorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step", step.StepName),
			attribute.String("class", string(class)),
		))

		// Critical-class errors and failures in load-bearing steps
		// abort; everything else degrades the execution to partial.
		if c.critical[step.StepName] || class == agents.ClassCritical || class == agents.ClassRollback {
			step.Status = StepFailed
			c.logger.Error("critical step failed, aborting execution",
				zap.String("execution_id", exec.ID),
				zap.String("step", step.StepName),
				zap.Error(err),
			)
			return true
		}

		if class == agents.ClassTransient {
			step.Status = StepSkipped
		} else {
			step.Status = StepFailed
		}
		c.logger.Warn("step failed, continuing",
			zap.String("execution_id", exec.ID),
			zap.String("step", step.StepName),
			zap.String("class", string(class)),
			zap.Error(err),
		)
		return false
	}

	for k, v := range out.Values {
		exec.State[k] = v
	}
	step.Output = out.Summary
	step.Status = StepCompleted
	return false
}

// finish settles the terminal status, records metrics, and persists the
// execution to history.
func (c *Coordinator) finish(ctx context.Context, exec *WorkflowExecution, status Status) {
	exec.Status = status
	exec.CompletedAt = timeNow()
	exec.Duration = exec.CompletedAt.Sub(exec.StartedAt)

	attrs := metric.WithAttributes(
		attribute.String("template", exec.TemplateName),
		attribute.String("status", string(status)),
	)
	executionCounter.Add(ctx, 1, attrs)
	executionDuration.Record(ctx, exec.Duration.Seconds(), attrs)

	c.logger.Info("workflow finished",
		zap.String("execution_id", exec.ID),
		zap.String("template", exec.TemplateName),
		zap.String("status", string(status)),
		zap.Duration("duration", exec.Duration),
	)

	if c.history == nil {
		return
	}
	// History is best-effort; a down history store never changes an
	// execution's outcome.
	if err := c.history.Save(context.WithoutCancel(ctx), exec); err != nil {
		c.logger.Warn("failed to persist execution history",
			zap.String("execution_id", exec.ID),
			zap.Error(err),
		)
	}
}

func skipRemaining(steps []StepResult) {
	for i := range steps {
		if steps[i].Status == StepPending {
			steps[i].Status = StepSkipped
		}
	}
}
