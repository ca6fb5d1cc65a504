package main

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/agents"
	"github.com/fyrsmithlabs/fixd/internal/analysis"
	"github.com/fyrsmithlabs/fixd/internal/api"
	"github.com/fyrsmithlabs/fixd/internal/backup"
	"github.com/fyrsmithlabs/fixd/internal/config"
	"github.com/fyrsmithlabs/fixd/internal/coordinator"
	"github.com/fyrsmithlabs/fixd/internal/logging"
	"github.com/fyrsmithlabs/fixd/internal/lock"
	"github.com/fyrsmithlabs/fixd/internal/patterns"
	"github.com/fyrsmithlabs/fixd/internal/publish"
	"github.com/fyrsmithlabs/fixd/internal/safety"
	"github.com/fyrsmithlabs/fixd/internal/scheduler"
	"github.com/fyrsmithlabs/fixd/internal/secrets"
	"github.com/fyrsmithlabs/fixd/internal/telemetry"
)

// app wires all components from configuration. Close releases everything
// in reverse construction order.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	tel      *telemetry.Telemetry
	db       *badger.DB
	store    *patterns.SanitizingStore
	history  coordinator.History
	backups  *backup.Manager
	scrubber secrets.Scrubber
	coord    *coordinator.Coordinator
	sched    *scheduler.Scheduler
	server   *api.Server
}

// newApp builds the full component graph. Workflow collaborators that
// need external configuration (analyzer, suggester, GitHub publisher)
// degrade to failing stand-ins rather than blocking startup, so read-only
// commands work on a minimal config.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	tel, err := telemetry.Setup(logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, tel: tel}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	a.scrubber = secrets.MustNew(nil)

	if err := a.openStores(); err != nil {
		return err
	}

	backupDir, err := config.ExpandHome(a.cfg.Backup.Dir)
	if err != nil {
		return fmt.Errorf("resolve backup dir: %w", err)
	}
	a.backups, err = backup.NewManager(backupDir, a.logger)
	if err != nil {
		return fmt.Errorf("initialize backup manager: %w", err)
	}

	agentList, err := a.buildAgents()
	if err != nil {
		return err
	}

	a.coord, err = coordinator.NewCoordinator(agentList, a.cfg.Workflow, a.history, a.logger)
	if err != nil {
		return fmt.Errorf("initialize coordinator: %w", err)
	}

	baseState := agents.State{agents.KeyRepository: a.cfg.Workflow.Repository}
	a.sched, err = scheduler.New(a.coord, a.cfg.Scheduler, baseState, a.logger)
	if err != nil {
		return fmt.Errorf("initialize scheduler: %w", err)
	}

	a.server, err = api.NewServer(a.sched, a.history, a.store, a.scrubber, a.logger, a.cfg.Server)
	if err != nil {
		return fmt.Errorf("initialize http server: %w", err)
	}
	return nil
}

// openStores opens the shared badger DB for patterns and history, falling
// back to in-memory stores when the DB is unavailable.
func (a *app) openStores() error {
	var inner patterns.Store

	if a.cfg.Store.InMemory {
		inner = patterns.NewMemoryStore()
		a.history = coordinator.NewMemoryHistory()
	} else {
		path, err := config.ExpandHome(a.cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("resolve store path: %w", err)
		}
		db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
		if err != nil {
			// Degraded mode: patterns and history become ephemeral, the
			// rest of the system keeps working.
			a.logger.Warn("pattern store unavailable, running in-memory",
				zap.String("path", path),
				zap.Error(err),
			)
			inner = patterns.NewMemoryStore()
			a.history = coordinator.NewMemoryHistory()
		} else {
			a.db = db
			inner = patterns.NewBadgerStoreFromDB(db, a.logger)
			a.history = coordinator.NewBadgerHistory(db)
		}
	}

	a.store = patterns.NewSanitizingStore(inner, a.scrubber, a.logger)
	return nil
}

// buildAgents assembles the step registry. Steps whose collaborators are
// not configured get stand-ins that fail the step at execution time with
// a clear message instead of failing construction.
func (a *app) buildAgents() ([]agents.Agent, error) {
	workDir, err := config.ExpandHome(a.cfg.Workflow.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}

	var analyzer agents.Analyzer
	if len(a.cfg.Workflow.AnalyzerCommand) > 0 {
		analyzer, err = analysis.NewCommandAnalyzer(a.cfg.Workflow.AnalyzerCommand, workDir, a.logger)
		if err != nil {
			return nil, err
		}
	} else {
		analyzer = unconfiguredAnalyzer{}
	}

	var suggester agents.Suggester
	if len(a.cfg.Workflow.SuggesterCommand) > 0 {
		suggester, err = analysis.NewCommandSuggester(a.cfg.Workflow.SuggesterCommand, workDir, a.logger)
		if err != nil {
			return nil, err
		}
	} else {
		suggester = unconfiguredSuggester{}
	}

	var publisher agents.Publisher
	if a.cfg.GitHub.Owner != "" && a.cfg.GitHub.Repo != "" && a.cfg.GitHub.Token.IsSet() {
		client, err := publish.NewGitHubClient(context.Background(), a.cfg.GitHub.Token)
		if err != nil {
			return nil, fmt.Errorf("initialize github client: %w", err)
		}
		publisher, err = publish.NewPublisher(client, a.cfg.GitHub, a.logger)
		if err != nil {
			return nil, fmt.Errorf("initialize publisher: %w", err)
		}
	} else {
		publisher = unconfiguredPublisher{}
	}

	git := publish.NewGitWorkspace(workDir, a.cfg.GitHub.Token, a.logger)
	validator := safety.NewValidator(a.cfg.Safety)
	fixer := agents.NewFixer(suggester, validator, a.backups, lock.NewPathLocker(), workDir, a.logger)

	return []agents.Agent{
		agents.NewPredictor(a.store, a.logger),
		agents.NewReviewer(analyzer, a.logger),
		fixer,
		agents.NewIntegrator(git, publisher, a.cfg.GitHub.Reviewers, a.logger),
		agents.NewLearner(a.store, a.logger),
	}, nil
}

// initialState seeds a fresh execution with the repository identity.
func (a *app) initialState() agents.State {
	return agents.State{agents.KeyRepository: a.cfg.Workflow.Repository}
}

// Close releases resources. Safe on a partially constructed app.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing pattern store failed", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing database failed", zap.Error(err))
		}
	}
	if a.tel != nil {
		if err := a.tel.Shutdown(context.Background()); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// unconfiguredAnalyzer fails the analyze step with a configuration hint.
type unconfiguredAnalyzer struct{}

func (unconfiguredAnalyzer) Analyze(context.Context, string) ([]agents.Issue, error) {
	return nil, agents.Critical(fmt.Errorf("no analyzer configured: set workflow.analyzer_command"))
}

// unconfiguredSuggester declines every issue, leaving them open.
type unconfiguredSuggester struct{}

func (unconfiguredSuggester) Suggest(context.Context, agents.Issue) (*agents.Suggestion, error) {
	return nil, nil
}

// unconfiguredPublisher fails the integrate step with a configuration hint.
type unconfiguredPublisher struct{}

func (unconfiguredPublisher) Publish(context.Context, agents.PullRequestInput) (string, error) {
	return "", fmt.Errorf("github publishing not configured: set github.owner, github.repo and github.token")
}
