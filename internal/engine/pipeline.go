package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/duckling/internal/assistant"
	"github.com/randalmurphal/duckling/internal/hosting"
	"github.com/randalmurphal/duckling/internal/llm"
	"github.com/randalmurphal/duckling/internal/precommit"
	"github.com/randalmurphal/duckling/internal/retry"
	"github.com/randalmurphal/duckling/internal/task"
)

// maxBranchLength bounds the generated branch name including the prefix.
const maxBranchLength = 30

// runPipeline advances one pending task through the full pipeline:
// branch, code generation, pre-commit checks, commit, pull request. The
// task is re-read before every step so a user cancel observed mid-flight
// stops the pipeline without further writes.
func (e *Engine) runPipeline(ctx context.Context, taskID int64) error {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != task.StatusPending {
		e.logger.Debug("pipeline skipped, task no longer pending",
			"task_id", taskID, "status", t.Status)
		return nil
	}

	repo, err := e.store.GetRepository(ctx, t.RepositoryPath)
	if err != nil {
		return e.failPipeline(ctx, t, fmt.Errorf("load repository %s: %w", t.RepositoryPath, err))
	}
	git := e.openRepo(t.RepositoryPath)

	// Step 1: pending → in-progress.
	if err := e.setStatus(ctx, t, task.StatusInProgress, task.StageCreatingBranch, task.LogInfo, "Task started"); err != nil {
		return err
	}

	// Step 2: create the working branch. The branch name is persisted
	// without publishing; the next stage change carries the updated
	// snapshot.
	err = e.runStep(ctx, stepLog{
		TaskID:   t.ID,
		Start:    "Creating branch",
		Complete: "Branch created",
		Failure:  "Branch creation failed",
	}, func(ctx context.Context) error {
		name, err := e.createBranch(ctx, t, repo, git)
		if err != nil {
			return err
		}
		cur, err := e.store.GetTask(ctx, t.ID)
		if err != nil {
			return err
		}
		*t = *cur
		t.BranchName = name
		return e.store.UpdateTask(ctx, t)
	})
	if err != nil {
		return e.failPipeline(ctx, t, err)
	}

	// Step 3: generate code.
	if cont, err := e.advanceStage(ctx, t, task.StageGeneratingCode); err != nil || !cont {
		return err
	}
	err = e.runStep(ctx, stepLog{
		TaskID:   t.ID,
		Start:    "Generating code",
		Complete: "Code generation finished",
		Failure:  "Code generation failed",
	}, func(ctx context.Context) error {
		return e.invokeAssistant(ctx, t, t.Description)
	})
	if err != nil {
		return e.failPipeline(ctx, t, err)
	}

	// Step 4: pre-commit checks with one fix round.
	if cont, err := e.advanceStage(ctx, t, task.StageRunningPrecommit); err != nil || !cont {
		return err
	}
	err = e.runStep(ctx, stepLog{
		TaskID:   t.ID,
		Start:    "Running pre-commit checks",
		Complete: "Pre-commit checks finished",
		Failure:  "Pre-commit checks failed",
	}, func(ctx context.Context) error {
		return e.runPrecommitChecks(ctx, t, git)
	})
	if err != nil {
		return e.failPipeline(ctx, t, err)
	}

	// Step 5: commit and push.
	if cont, err := e.advanceStage(ctx, t, task.StageCommitting); err != nil || !cont {
		return err
	}
	err = e.runStep(ctx, stepLog{
		TaskID:   t.ID,
		Start:    "Committing changes",
		Complete: "Changes committed and pushed",
		Failure:  "Commit failed",
	}, func(ctx context.Context) error {
		return e.commitAndPush(ctx, t, git)
	})
	if err != nil {
		return e.failPipeline(ctx, t, err)
	}

	// Step 6: open the pull request and hand the task to review.
	if cont, err := e.advanceStage(ctx, t, task.StageCreatingPR); err != nil || !cont {
		return err
	}
	err = e.runStep(ctx, stepLog{
		TaskID:   t.ID,
		Start:    "Creating pull request",
		Complete: "Pull request ready",
		Failure:  "Pull request creation failed",
	}, func(ctx context.Context) error {
		return e.openPullRequest(ctx, t, repo)
	})
	if err != nil {
		return e.failPipeline(ctx, t, err)
	}
	return nil
}

// advanceStage re-reads the task, stops if it reached a terminal state,
// then writes the new stage and publishes. A false return means the
// pipeline should stop without error.
func (e *Engine) advanceStage(ctx context.Context, t *task.Task, stage task.Stage) (bool, error) {
	cur, err := e.store.GetTask(ctx, t.ID)
	if err != nil {
		return false, err
	}
	if cur.Status.Terminal() {
		e.logger.Info("pipeline stopped, task reached terminal state",
			"task_id", t.ID, "status", cur.Status)
		return false, nil
	}
	*t = *cur
	if err := e.setStage(ctx, t, stage); err != nil {
		return false, err
	}
	return true, nil
}

// failPipeline marks the task failed at the pipeline boundary and returns
// the cause so the executor records the operation failure.
func (e *Engine) failPipeline(ctx context.Context, t *task.Task, cause error) error {
	err := e.transitionFresh(ctx, t, task.StatusFailed, task.StageFailed,
		task.LogError, "Task failed: "+cause.Error())
	if err != nil {
		e.logger.Error("mark task failed", "task_id", t.ID, "error", err)
	}
	return cause
}

// createBranch syncs the working tree to the base branch and creates a
// uniquely named local branch derived from the task description.
func (e *Engine) createBranch(ctx context.Context, t *task.Task, repo *task.Repository, git GitRepo) (string, error) {
	slug := e.gen.BranchSlug(ctx, t.Description)
	name := buildBranchName(e.settings.BranchPrefix(ctx), slug, t.Description)

	base := e.settings.BaseBranch(ctx)
	if provider, perr := e.provider(ctx, repo); perr != nil {
		e.logger.Warn("hosting provider unavailable, using configured base branch",
			"base", base, "error", perr)
	} else {
		base = e.resolveBaseBranch(ctx, provider, repo)
	}

	if err := git.HardReset(ctx); err != nil {
		return "", err
	}
	if err := git.CleanFD(ctx); err != nil {
		return "", err
	}
	if err := git.Checkout(ctx, base); err != nil {
		return "", err
	}
	if err := e.retryOp(ctx, func(ctx context.Context) error {
		return git.Pull(ctx, "origin", base)
	}); err != nil {
		return "", err
	}

	branches, err := git.LocalBranches(ctx)
	if err != nil {
		return "", err
	}
	name = uniqueBranchName(name, branches)
	if err := git.CreateBranch(ctx, name); err != nil {
		return "", err
	}

	e.logger.Debug("branch created", "task_id", t.ID, "branch", name, "base", base)
	return name, nil
}

// resolveBaseBranch asks the hosted-VCS for the repository's default
// branch, falling back to the configured base branch.
func (e *Engine) resolveBaseBranch(ctx context.Context, provider hosting.Provider, repo *task.Repository) string {
	fallback := e.settings.BaseBranch(ctx)
	branch, err := retry.Do(ctx, e.retryConfig(ctx), func(ctx context.Context) (string, error) {
		return provider.DefaultBranch(ctx, repo.Owner, repo.Name)
	})
	if err != nil || branch == "" {
		e.logger.Warn("default branch lookup failed, using configured base branch",
			"owner", repo.Owner, "repo", repo.Name, "base", fallback, "error", err)
		return fallback
	}
	return branch
}

// invokeAssistant runs the task's coding tool with prompt, retrying
// transient failures up to the configured bound.
func (e *Engine) invokeAssistant(ctx context.Context, t *task.Task, prompt string) error {
	_, err := retry.Do(ctx, e.retryConfig(ctx), func(ctx context.Context) (string, error) {
		return e.bridge.Generate(ctx, t.CodingTool, prompt, assistant.Invocation{
			TaskID:  t.ID,
			RepoDir: t.RepositoryPath,
		})
	})
	return err
}

// runPrecommitChecks runs the configured checks, asks the assistant for
// one fix round when anything fails, and re-runs. Failures after the
// second round are logged and do not fail the task.
func (e *Engine) runPrecommitChecks(ctx context.Context, t *task.Task, git GitRepo) error {
	checks, err := e.store.ListPrecommitChecks(ctx)
	if err != nil {
		return err
	}
	if len(checks) == 0 {
		return nil
	}

	failures, err := e.runCheckRound(ctx, checks, t, git)
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}

	e.logTask(ctx, t.ID, task.LogWarn,
		"Pre-commit checks failed, requesting fixes:\n"+precommit.Format(failures))
	if err := e.invokeAssistant(ctx, t, fixPrompt(t.Description, failures)); err != nil {
		return err
	}

	second, err := e.runCheckRound(ctx, checks, t, git)
	if err != nil {
		return err
	}
	if len(second) > 0 {
		e.logTask(ctx, t.ID, task.LogWarn,
			"Pre-commit checks still failing after fix round, continuing:\n"+precommit.Format(second))
	}
	return nil
}

func (e *Engine) runCheckRound(ctx context.Context, checks []task.PrecommitCheck, t *task.Task, git GitRepo) ([]precommit.Failure, error) {
	st, err := git.Status(ctx)
	if err != nil {
		return nil, err
	}
	return e.checks.Run(ctx, checks, t.RepositoryPath, st.Files), nil
}

// fixPrompt composes the assistant prompt for a pre-commit fix round.
func fixPrompt(description string, failures []precommit.Failure) string {
	return description +
		"\n\nThe following pre-commit checks failed. Fix the reported problems:\n" +
		precommit.Format(failures)
}

// commitAndPush stages everything, commits with a generated message plus
// the configured suffix, and pushes the branch. Nothing staged fails the
// step: the assistant produced no modifications.
func (e *Engine) commitAndPush(ctx context.Context, t *task.Task, git GitRepo) error {
	st, err := git.Status(ctx)
	if err != nil {
		return err
	}
	if err := git.Add(ctx, "."); err != nil {
		return err
	}
	staged, err := git.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !staged {
		return errors.New("no changes to commit")
	}

	message := applyCommitSuffix(
		e.gen.CommitMessage(ctx, t.Description, st.Files),
		e.settings.CommitSuffix(ctx),
	)
	if err := git.Commit(ctx, message); err != nil {
		return err
	}
	return e.retryOp(ctx, func(ctx context.Context) error {
		return git.Push(ctx, "origin", t.BranchName)
	})
}

// openPullRequest reuses the branch's open PR when one exists, otherwise
// creates one, then persists the PR fields and moves the task to
// awaiting-review in a single update.
func (e *Engine) openPullRequest(ctx context.Context, t *task.Task, repo *task.Repository) error {
	provider, err := e.provider(ctx, repo)
	if err != nil {
		return err
	}
	rcfg := e.retryConfig(ctx)

	pr, err := retry.Do(ctx, rcfg, func(ctx context.Context) (*hosting.PR, error) {
		existing, err := provider.FindPRByBranch(ctx, repo.Owner, repo.Name, t.BranchName)
		if errors.Is(err, hosting.ErrNoPRFound) {
			return nil, nil
		}
		return existing, err
	})
	if err != nil {
		return err
	}

	if pr != nil {
		e.logTask(ctx, t.ID, task.LogInfo, fmt.Sprintf("Reusing open pull request #%d", pr.Number))
	} else {
		base := e.resolveBaseBranch(ctx, provider, repo)

		var title, body string
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			title = e.gen.PRTitle(gctx, t.Description)
			return nil
		})
		g.Go(func() error {
			body = e.gen.PRBody(gctx, t.Description, t.BranchName)
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}
		if prefix := e.settings.PRTitlePrefix(ctx); prefix != "" {
			title = strings.TrimSpace(prefix + " " + title)
		}

		pr, err = retry.Do(ctx, rcfg, func(ctx context.Context) (*hosting.PR, error) {
			return provider.CreatePR(ctx, repo.Owner, repo.Name, hosting.PRCreateOptions{
				Title: title,
				Body:  body,
				Head:  t.BranchName,
				Base:  base,
			})
		})
		if err != nil {
			return err
		}
		e.logTask(ctx, t.ID, task.LogInfo, fmt.Sprintf("Created pull request #%d", pr.Number))
	}

	// Re-read before the final transition so a cancel that landed during
	// PR creation wins. pr_number and pr_url are set together, once.
	cur, err := e.store.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return nil
	}
	*t = *cur
	t.PRNumber = pr.Number
	t.PRURL = pr.URL
	return e.setStatus(ctx, t, task.StatusAwaitingReview, task.StageAwaitingReview, task.LogInfo, "Task awaiting review")
}

// retryOp applies the bounded-retry policy to a remote operation that
// returns only an error.
func (e *Engine) retryOp(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := retry.Do(ctx, e.retryConfig(ctx), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// buildBranchName composes prefix+slug, deriving a slug from the
// description when the generator produced nothing usable, bounded to
// maxBranchLength characters.
func buildBranchName(prefix, slug, description string) string {
	if strings.TrimSpace(slug) == "" {
		slug = llm.FallbackSlug(description)
	}
	if avail := maxBranchLength - len(prefix); avail > 0 && len(slug) > avail {
		slug = slug[:avail]
	}
	name := sanitizeBranchName(prefix + slug)
	if len(name) > maxBranchLength {
		name = strings.Trim(name[:maxBranchLength], "-")
	}
	if name == "" {
		name = "task"
	}
	return name
}

// sanitizeBranchName lowercases, maps runs of other characters to single
// dashes, trims edge dashes, and drops leading non-letters so the result
// always starts with a letter.
func sanitizeBranchName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	out = strings.Trim(out, "-")
	for out != "" && (out[0] < 'a' || out[0] > 'z') {
		out = strings.TrimLeft(out[1:], "-")
	}
	return out
}

// uniqueBranchName suffixes -1, -2, ... until the name is unused.
func uniqueBranchName(name string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, b := range existing {
		taken[b] = struct{}{}
	}
	if _, ok := taken[name]; !ok {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// applyCommitSuffix appends suffix unless the message already ends with it.
func applyCommitSuffix(message, suffix string) string {
	if suffix == "" || strings.HasSuffix(message, suffix) {
		return message
	}
	return message + suffix
}
