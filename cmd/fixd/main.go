// Package main implements the fixd CLI: one-shot workflow runs, the
// background daemon, rollback of applied fixes, and pattern inspection.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/agents"
	"github.com/fyrsmithlabs/fixd/internal/coordinator"
	"github.com/fyrsmithlabs/fixd/internal/patterns"
)

var (
	// configPath is the --config flag value; empty means defaults plus
	// environment overrides.
	configPath string

	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fixd",
	Short: "Autonomous code-fixing workflows",
	Long: `fixd analyzes a repository, applies safety-validated fixes with
backups, publishes them as pull requests, and learns from the outcomes.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsSweepCmd)
}

var interactive bool

var runCmd = &cobra.Command{
	Use:   "run <template>",
	Short: "Run a workflow template once",
	Long: `Run a workflow template to completion and print the result.

Examples:
  # Run the full workflow
  fixd run full

  # Confirm each step before it runs
  fixd run full --interactive`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&interactive, "interactive", false, "confirm each step before running it")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	coord := a.coord
	if interactive {
		coord, err = a.interactiveCoordinator()
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec := coord.Execute(ctx, args[0], a.initialState())
	printExecution(exec)

	if exec.Status == coordinator.StatusFailed {
		return fmt.Errorf("workflow failed")
	}
	return nil
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduler and HTTP API",
	Long: `Start fixd as a long-running daemon: scheduled background workflows
plus the HTTP API for triggering, history queries and metrics.

Examples:
  # Start with defaults
  fixd daemon

  # Start with a config file
  fixd daemon --config /etc/fixd/config.yaml`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	// Every configured template runs in the background on the default
	// interval; the API can reschedule or cancel them.
	for template := range a.cfg.Workflow.Templates {
		a.sched.ScheduleBackground(template, 0)
	}
	if err := a.sched.Start(); err != nil {
		return err
	}
	defer func() { _ = a.sched.Stop() }()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <execution-id>",
	Short: "Restore every file an execution modified",
	Long: `Roll back all fixes applied by an execution, restoring each file
from its backup in reverse application order.

Examples:
  fixd rollback 7b0c2f6e-4a9d-4c41-9a37-2f6f3a6a9f01`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func runRollback(_ *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.backups.RollbackAll(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("restored %d files\n", len(report.Restored))
	for _, ref := range report.Restored {
		fmt.Printf("  restored  %s\n", ref.FilePath)
	}
	for _, failure := range report.Failed {
		fmt.Printf("  FAILED    %s: %s\n", failure.Ref.FilePath, failure.Error)
	}
	if !report.Complete() {
		return fmt.Errorf("rollback incomplete: %d files failed", len(report.Failed))
	}

	// Keep history honest: applied fixes on the restored execution move
	// to rolledback.
	ctx := context.Background()
	exec, err := a.history.Get(ctx, args[0])
	if err != nil {
		a.logger.Warn("execution record not updated after rollback", zap.Error(err))
		return nil
	}
	if n := agents.MarkFixesRolledBack(exec.State); n > 0 {
		if err := a.history.Save(ctx, exec); err != nil {
			a.logger.Warn("execution record not updated after rollback", zap.Error(err))
			return nil
		}
		fmt.Printf("marked %d fixes rolled back\n", n)
	}
	return nil
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and maintain the learned pattern store",
}

var patternType string

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned patterns for the configured repository",
	RunE:  runPatternsList,
}

func init() {
	patternsListCmd.Flags().StringVar(&patternType, "type", "", "filter by pattern type (issue, fix-outcome)")
}

func runPatternsList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	repository := a.cfg.Workflow.Repository
	if repository == "" {
		return fmt.Errorf("workflow.repository is not configured")
	}

	count := 0
	prefix := patterns.KeyPrefix(repository, patternType)
	err = a.store.Scan(cmd.Context(), prefix, func(key patterns.Key, p patterns.Pattern) bool {
		count++
		fmt.Printf("%-12s freq=%-4d conf=%.3f last=%s  %s\n",
			p.Type, p.Frequency, p.Confidence, p.LastSeen.Format("2006-01-02"), p.Payload)
		return true
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d patterns\n", count)
	return nil
}

var sweepFloor float64

var patternsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Rescore patterns and drop the ones that decayed away",
	Long: `Recompute every pattern's confidence with idle decay applied, then
delete patterns whose confidence fell below the floor. Also removes
expired backups per the configured retention.`,
	RunE: runPatternsSweep,
}

func init() {
	patternsSweepCmd.Flags().Float64Var(&sweepFloor, "floor", 0.05, "confidence floor below which patterns are deleted")
}

func runPatternsSweep(cmd *cobra.Command, _ []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	repository := a.cfg.Workflow.Repository
	if repository == "" {
		return fmt.Errorf("workflow.repository is not configured")
	}

	ctx := cmd.Context()
	var stale []patterns.Key
	rescored := 0

	err = a.store.Scan(ctx, patterns.KeyPrefix(repository, ""), func(key patterns.Key, p patterns.Pattern) bool {
		patterns.Rescore(&p)
		if p.Confidence < sweepFloor {
			stale = append(stale, key)
			return true
		}
		if putErr := a.store.Put(ctx, key, p); putErr != nil {
			a.logger.Warn("rescore write failed", zap.String("key", key.String()), zap.Error(putErr))
			return true
		}
		rescored++
		return true
	})
	if err != nil {
		return err
	}

	deleted := 0
	for _, key := range stale {
		if delErr := a.store.Delete(ctx, key); delErr != nil {
			a.logger.Warn("pattern delete failed", zap.String("key", key.String()), zap.Error(delErr))
			continue
		}
		deleted++
	}

	swept, err := a.backups.Sweep(a.cfg.Backup.Retention.Duration())
	if err != nil {
		return err
	}

	fmt.Printf("rescored %d patterns, deleted %d, removed %d expired backups\n", rescored, deleted, swept)
	return nil
}

// interactiveCoordinator rebuilds the coordinator with a terminal prompt
// as its decision source.
func (a *app) interactiveCoordinator() (*coordinator.Coordinator, error) {
	agentList, err := a.buildAgents()
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReader(os.Stdin)
	decide := func(stepName, description string) coordinator.Decision {
		for {
			fmt.Printf("step %q: %s\n  [r]un / [s]kip / [a]bort? ", stepName, description)
			line, err := reader.ReadString('\n')
			if err != nil {
				return coordinator.DecisionAbort
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "", "r", "run":
				return coordinator.DecisionRun
			case "s", "skip":
				return coordinator.DecisionSkip
			case "a", "abort":
				return coordinator.DecisionAbort
			}
		}
	}

	return coordinator.NewCoordinator(agentList, a.cfg.Workflow, a.history, a.logger,
		coordinator.WithDecisionSource(decide))
}

// printExecution renders a finished execution for the terminal.
func printExecution(exec *coordinator.WorkflowExecution) {
	fmt.Printf("execution %s (%s): %s in %s\n", exec.ID, exec.TemplateName, exec.Status, exec.Duration.Round(time.Millisecond))
	if exec.Error != "" {
		fmt.Printf("  error: %s\n", exec.Error)
	}
	for _, step := range exec.Steps {
		line := fmt.Sprintf("  %-10s %s", step.StepName, step.Status)
		if step.RetryCount > 0 {
			line += fmt.Sprintf(" (retried %d)", step.RetryCount)
		}
		if step.Output != "" {
			line += "  " + step.Output
		}
		if step.Error != "" {
			line += "  error: " + step.Error
		}
		fmt.Println(line)
	}
}
