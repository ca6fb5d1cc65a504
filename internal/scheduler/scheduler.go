// Package scheduler runs workflow templates in the background on an
// adaptive interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/agents"
	"github.com/fyrsmithlabs/fixd/internal/config"
	"github.com/fyrsmithlabs/fixd/internal/coordinator"
)

// Runner executes one workflow template to a terminal state. The
// coordinator satisfies this.
type Runner interface {
	Execute(ctx context.Context, templateName string, initial agents.State) *coordinator.WorkflowExecution
}

// job is one scheduled background workflow.
type job struct {
	template string
	interval time.Duration

	// activity counts repository-activity signals since the last run.
	activity int

	updateCh chan time.Duration
	stopCh   chan struct{}
}

// Scheduler manages background workflow executions.
//
// Each scheduled template runs in its own goroutine on its own interval.
// Activity signals shrink the interval toward the configured minimum;
// idle runs stretch it toward the maximum.
//
// Thread Safety: All public methods are thread-safe. The running state
// is protected by a mutex to prevent races during Start/Stop.
type Scheduler struct {
	runner Runner
	cfg    config.SchedulerConfig

	// baseState seeds every triggered execution, typically with the
	// repository identity.
	baseState agents.State

	mu      sync.Mutex
	running bool
	jobs    map[string]*job
	wg      sync.WaitGroup

	logger *zap.Logger
}

// New creates a scheduler. It does not start automatically; call Start.
func New(runner Runner, cfg config.SchedulerConfig, baseState agents.State, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Scheduler{
		runner:    runner,
		cfg:       cfg,
		baseState: baseState,
		jobs:      make(map[string]*job),
		logger:    logger,
	}, nil
}

// Start enables the scheduler. Jobs scheduled while stopped begin running.
// Calling Start on a running scheduler returns an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true

	for _, j := range s.jobs {
		s.launch(j)
	}

	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop gracefully stops all background jobs and waits for them to finish.
// Stopping a stopped scheduler is a no-op. Scheduled jobs survive a stop
// and resume on the next Start.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Debug("scheduler stop called but not running")
		return nil
	}
	s.running = false
	for _, j := range s.jobs {
		close(j.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// ScheduleBackground registers (or reschedules) a background job for the
// template. A zero interval uses the configured default; any interval is
// clamped to the configured [min, max] window.
func (s *Scheduler) ScheduleBackground(template string, interval time.Duration) {
	if interval == 0 {
		interval = s.cfg.DefaultInterval.Duration()
	}
	interval = s.clamp(interval)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[template]; ok {
		existing.interval = interval
		if s.running {
			select {
			case existing.updateCh <- interval:
			default:
			}
		}
		s.logger.Info("background job rescheduled",
			zap.String("template", template),
			zap.Duration("interval", interval),
		)
		return
	}

	j := &job{
		template: template,
		interval: interval,
		updateCh: make(chan time.Duration, 1),
		stopCh:   make(chan struct{}),
	}
	s.jobs[template] = j
	if s.running {
		s.launch(j)
	}

	s.logger.Info("background job scheduled",
		zap.String("template", template),
		zap.Duration("interval", interval),
	)
}

// CancelBackground removes the template's background job if one exists.
func (s *Scheduler) CancelBackground(template string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[template]
	if !ok {
		return false
	}
	delete(s.jobs, template)
	if s.running {
		close(j.stopCh)
	}

	s.logger.Info("background job cancelled", zap.String("template", template))
	return true
}

// TriggerNow runs the template immediately, outside any schedule, and
// returns the finished execution.
func (s *Scheduler) TriggerNow(ctx context.Context, template string) *coordinator.WorkflowExecution {
	s.logger.Info("manual trigger", zap.String("template", template))
	return s.runner.Execute(ctx, template, s.initialState())
}

// Signal records repository activity for a scheduled template. Activity
// halves the job's interval, bounded by the configured minimum, so busy
// repositories get checked more often.
func (s *Scheduler) Signal(template string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[template]
	if !ok {
		return
	}
	j.activity++

	next := s.clamp(j.interval / 2)
	if next == j.interval {
		return
	}
	j.interval = next
	if s.running {
		// Non-blocking: a pending update already carries a fresher value.
		select {
		case j.updateCh <- next:
		default:
		}
	}

	s.logger.Debug("activity signal shortened interval",
		zap.String("template", template),
		zap.Duration("interval", next),
	)
}

// Intervals returns the current interval per scheduled template.
func (s *Scheduler) Intervals() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Duration, len(s.jobs))
	for name, j := range s.jobs {
		out[name] = j.interval
	}
	return out
}

// launch gives the job fresh channels before starting its loop: the
// previous Stop closed the old stopCh, and a loop started on a closed
// channel would exit before its first tick.
func (s *Scheduler) launch(j *job) {
	j.stopCh = make(chan struct{})
	j.updateCh = make(chan time.Duration, 1)
	s.wg.Add(1)
	go s.run(j, j.stopCh, j.updateCh)
}

// run is one job's loop. Each tick runs the workflow; an idle run (no
// activity signals since the previous run) backs the interval off.
func (s *Scheduler) run(j *job, stopCh <-chan struct{}, updateCh <-chan time.Duration) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler job panicked, recovering",
				zap.String("template", j.template),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(j)
			ticker.Reset(s.currentInterval(j))

		case interval := <-updateCh:
			ticker.Reset(interval)

		case <-stopCh:
			return
		}
	}
}

// runOnce executes the job's workflow and applies the idle backoff.
func (s *Scheduler) runOnce(j *job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	exec := s.runner.Execute(ctx, j.template, s.initialState())

	s.logger.Info("scheduled run finished",
		zap.String("template", j.template),
		zap.String("execution_id", exec.ID),
		zap.String("status", string(exec.Status)),
		zap.Duration("duration", exec.Duration),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if j.activity == 0 {
		// Idle since the last run: stretch the interval.
		j.interval = s.clamp(j.interval * 2)
	}
	j.activity = 0
}

func (s *Scheduler) currentInterval(j *job) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return j.interval
}

func (s *Scheduler) initialState() agents.State {
	st := agents.State{}
	for k, v := range s.baseState {
		st[k] = v
	}
	return st
}

// clamp bounds an interval to the configured [min, max] window.
func (s *Scheduler) clamp(d time.Duration) time.Duration {
	if min := s.cfg.MinInterval.Duration(); min > 0 && d < min {
		return min
	}
	if max := s.cfg.MaxInterval.Duration(); max > 0 && d > max {
		return max
	}
	return d
}
