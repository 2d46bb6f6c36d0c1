// Package engine owns the task lifecycle: the state machine, the periodic
// scheduler, the pipeline that turns a pending task into a pull request,
// and review ingestion for tasks awaiting review.
//
// Every dependency is injected so the state machine is testable without a
// real database, git binary, or hosted-VCS account. All task-bound work is
// funneled through the single-worker executor; user-facing operations
// write one row and return directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/duckling/internal/assistant"
	"github.com/randalmurphal/duckling/internal/db"
	"github.com/randalmurphal/duckling/internal/events"
	"github.com/randalmurphal/duckling/internal/executor"
	"github.com/randalmurphal/duckling/internal/gitx"
	"github.com/randalmurphal/duckling/internal/hosting"
	"github.com/randalmurphal/duckling/internal/precommit"
	"github.com/randalmurphal/duckling/internal/retry"
	"github.com/randalmurphal/duckling/internal/settings"
	"github.com/randalmurphal/duckling/internal/task"
)

// Boundary errors mapped to user-visible responses by the HTTP surface.
var (
	ErrNotRegistered     = errors.New("repository is not registered")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the slice of the database the engine drives.
type Store interface {
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id int64) (*task.Task, error)
	UpdateTask(ctx context.Context, t *task.Task) error
	ListTasksByStatus(ctx context.Context, status task.Status) ([]task.Task, error)
	AppendTaskLog(ctx context.Context, taskID int64, level task.LogLevel, message string) error
	GetRepository(ctx context.Context, path string) (*task.Repository, error)
	ListPrecommitChecks(ctx context.Context) ([]task.PrecommitCheck, error)
}

// TextGenerator produces the short texts the pipeline needs. Implementations
// are expected to fall back internally and never fail.
type TextGenerator interface {
	BranchSlug(ctx context.Context, description string) string
	PRTitle(ctx context.Context, description string) string
	PRBody(ctx context.Context, description, branch string) string
	TaskSummary(ctx context.Context, description string) string
	CommitMessage(ctx context.Context, description string, files []string) string
}

// GitRepo is the slice of the git driver the engine uses.
type GitRepo interface {
	Fetch(ctx context.Context, remote, branch string) error
	Checkout(ctx context.Context, branch string) error
	Pull(ctx context.Context, remote, branch string) error
	HardReset(ctx context.Context) error
	CleanFD(ctx context.Context) error
	CreateBranch(ctx context.Context, name string) error
	LocalBranches(ctx context.Context) ([]string, error)
	Status(ctx context.Context) (*gitx.Status, error)
	Add(ctx context.Context, path string) error
	HasStagedChanges(ctx context.Context) (bool, error)
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, remote, branch string) error
	LastCommitTimestamp(ctx context.Context) (time.Time, error)
}

// RepoOpener returns a git handle for a registered working copy.
type RepoOpener func(dir string) GitRepo

// ProviderFactory builds a hosted-VCS provider for a registry row.
type ProviderFactory func(providerType hosting.ProviderType, cfg hosting.Config) (hosting.Provider, error)

// PrecommitRunner executes the configured pre-commit checks.
type PrecommitRunner interface {
	Run(ctx context.Context, checks []task.PrecommitCheck, dir string, changed []string) []precommit.Failure
}

// Config wires the engine's dependencies.
type Config struct {
	Store       Store
	Settings    *settings.Settings
	Bus         *events.Bus
	Executor    *executor.Executor
	Bridge      assistant.Bridge
	Generator   TextGenerator
	Precommit   PrecommitRunner
	OpenRepo    RepoOpener      // defaults to gitx.New
	NewProvider ProviderFactory // defaults to hosting.NewProvider
	Logger      *slog.Logger
	// TickInterval is the scheduler cadence. Zero means DefaultTickInterval.
	TickInterval time.Duration
}

// Engine drives tasks from creation to PR close.
type Engine struct {
	store       Store
	settings    *settings.Settings
	bus         *events.Bus
	exec        *executor.Executor
	bridge      assistant.Bridge
	gen         TextGenerator
	checks      PrecommitRunner
	openRepo    RepoOpener
	newProvider ProviderFactory
	logger      *slog.Logger
	interval    time.Duration

	ticking  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an engine from cfg. Store, Settings, Bus, Executor, Bridge,
// Generator, and Precommit are required; the rest default.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	openRepo := cfg.OpenRepo
	if openRepo == nil {
		openRepo = func(dir string) GitRepo {
			return gitx.New(dir, nil, logger)
		}
	}
	newProvider := cfg.NewProvider
	if newProvider == nil {
		newProvider = hosting.NewProvider
	}

	return &Engine{
		store:       cfg.Store,
		settings:    cfg.Settings,
		bus:         cfg.Bus,
		exec:        cfg.Executor,
		bridge:      cfg.Bridge,
		gen:         cfg.Generator,
		checks:      cfg.Precommit,
		openRepo:    openRepo,
		newProvider: newProvider,
		logger:      logger,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// CreateTaskRequest carries the user inputs for a new task.
type CreateTaskRequest struct {
	Title          string
	Description    string
	CodingTool     string
	RepositoryPath string
}

// CreateTask validates the request, generates a best-effort summary,
// inserts the task as pending, and announces it.
func (e *Engine) CreateTask(ctx context.Context, req CreateTaskRequest) (*task.Task, error) {
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, task.ErrEmptyDescription
	}

	if _, err := e.store.GetRepository(ctx, req.RepositoryPath); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", req.RepositoryPath, ErrNotRegistered)
		}
		return nil, err
	}

	tool := task.CodingTool(req.CodingTool)
	if req.CodingTool == "" {
		tool = task.CodingTool(e.settings.DefaultCodingTool(ctx))
	}
	if !task.IsValidTool(tool) {
		return nil, fmt.Errorf("%w: %q", task.ErrUnknownTool, req.CodingTool)
	}

	t := &task.Task{
		Title:          strings.TrimSpace(req.Title),
		Description:    desc,
		Summary:        e.gen.TaskSummary(ctx, desc),
		Status:         task.StatusPending,
		CodingTool:     tool,
		RepositoryPath: req.RepositoryPath,
	}
	if err := e.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	e.logTask(ctx, t.ID, task.LogInfo, "Task created")
	e.publish(t)
	e.logger.Info("task created",
		"task_id", t.ID,
		"tool", t.CodingTool,
		"repository", t.RepositoryPath,
	)
	return t, nil
}

// CancelTask moves a non-terminal task to cancelled. Cancelling an already
// cancelled task is a no-op and emits nothing.
func (e *Engine) CancelTask(ctx context.Context, id int64) error {
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status == task.StatusCancelled {
		return nil
	}
	if t.Status.Terminal() {
		return fmt.Errorf("cancel task %d in status %s: %w", id, t.Status, ErrInvalidTransition)
	}
	return e.setStatus(ctx, t, task.StatusCancelled, task.StageCancelled, task.LogInfo, "Task cancelled")
}

// RetryTask re-queues a failed task. Retry from any other status is
// rejected.
func (e *Engine) RetryTask(ctx context.Context, id int64) error {
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusFailed {
		return fmt.Errorf("retry task %d in status %s: %w", id, t.Status, ErrInvalidTransition)
	}
	return e.setStatus(ctx, t, task.StatusPending, "", task.LogInfo, "Task queued for retry")
}

// MarkComplete moves a non-terminal task to completed. Marking an already
// completed task is a no-op.
func (e *Engine) MarkComplete(ctx context.Context, id int64) error {
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status == task.StatusCompleted {
		return nil
	}
	if t.Status.Terminal() {
		return fmt.Errorf("complete task %d in status %s: %w", id, t.Status, ErrInvalidTransition)
	}
	return e.setStatus(ctx, t, task.StatusCompleted, task.StageCompleted, task.LogInfo, "Task marked complete")
}

// Subscribe registers an event subscriber with the given buffer.
func (e *Engine) Subscribe(buffer int) (string, <-chan events.TaskUpdate) {
	return e.bus.Subscribe(buffer)
}

// Unsubscribe removes an event subscriber.
func (e *Engine) Unsubscribe(id string) {
	e.bus.Unsubscribe(id)
}

// setStatus writes status and stage in one update, appends a task log
// entry, and publishes the transition. Completed and cancelled stamp
// completed_at.
func (e *Engine) setStatus(ctx context.Context, t *task.Task, status task.Status, stage task.Stage, level task.LogLevel, message string) error {
	t.Status = status
	t.CurrentStage = stage
	if status == task.StatusCompleted || status == task.StatusCancelled {
		now := time.Now().UTC().Truncate(time.Second)
		t.CompletedAt = &now
	}
	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	e.logTask(ctx, t.ID, level, message)
	e.publish(t)
	return nil
}

// transitionFresh re-reads the task and applies the transition only if it
// is still non-terminal. Engine-driven transitions use this so a user
// cancel that landed mid-operation is never overwritten.
func (e *Engine) transitionFresh(ctx context.Context, t *task.Task, status task.Status, stage task.Stage, level task.LogLevel, message string) error {
	cur, err := e.store.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		e.logger.Debug("skipping transition, task already terminal",
			"task_id", t.ID, "status", cur.Status, "wanted", status)
		return nil
	}
	*t = *cur
	return e.setStatus(ctx, t, status, stage, level, message)
}

// setStage advances current_stage within in-progress and publishes. Stage
// changes carry no log entry of their own; the surrounding step logging
// covers them.
func (e *Engine) setStage(ctx context.Context, t *task.Task, stage task.Stage) error {
	t.CurrentStage = stage
	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	e.publish(t)
	return nil
}

func (e *Engine) publish(t *task.Task) {
	e.bus.Publish(events.TaskUpdate{
		TaskID: t.ID,
		Status: t.Status,
		Task:   t.Clone(),
		Time:   time.Now().UTC(),
	})
}

// logTask appends to the task's log. Log writes are best-effort; a failed
// append must not fail the operation that produced it.
func (e *Engine) logTask(ctx context.Context, taskID int64, level task.LogLevel, message string) {
	if err := e.store.AppendTaskLog(ctx, taskID, level, message); err != nil {
		e.logger.Warn("append task log failed", "task_id", taskID, "error", err)
	}
}

// provider builds a hosted-VCS client for a registry row, reading the
// matching token from settings.
func (e *Engine) provider(ctx context.Context, repo *task.Repository) (hosting.Provider, error) {
	ptype := hosting.ProviderType(repo.Provider)
	cfg := hosting.Config{}
	key := settings.KeyGitHubToken
	switch ptype {
	case hosting.ProviderGitHub:
		cfg.Token = e.settings.GitHubToken(ctx)
	case hosting.ProviderGitLab:
		cfg.Token = e.settings.GitLabToken(ctx)
		key = settings.KeyGitLabToken
	}

	p, err := e.newProvider(ptype, cfg)
	if err != nil {
		if errors.Is(err, hosting.ErrNoToken) {
			return nil, fmt.Errorf("%s setting is not set: %w", key, err)
		}
		return nil, err
	}
	return p, nil
}

// retryConfig is the bounded-retry policy for remote operations, sized by
// the maxRetries setting.
func (e *Engine) retryConfig(ctx context.Context) retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = e.settings.MaxRetries(ctx)
	return cfg
}

// LogHook returns an executor hook that reports op lifecycle to logger.
func LogHook(logger *slog.Logger) executor.Hook {
	return func(ev executor.Event) {
		switch ev.Kind {
		case executor.KindStart:
			logger.Debug("task operation started",
				"op_id", ev.OpID, "task_id", ev.TaskID, "name", ev.Name)
		case executor.KindComplete:
			logger.Debug("task operation completed",
				"op_id", ev.OpID, "task_id", ev.TaskID, "name", ev.Name)
		case executor.KindError:
			logger.Error("task operation failed",
				"op_id", ev.OpID, "task_id", ev.TaskID, "name", ev.Name, "error", ev.Err)
		}
	}
}
